package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/middleware"
	"github.com/vielimo/service-booking/pkg/response"
)

// CouponHandler handles the public coupon endpoints used at checkout.
type CouponHandler struct {
	service *application.CouponService
	nonces  *auth.NonceManager
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(service *application.CouponService, nonces *auth.NonceManager) *CouponHandler {
	return &CouponHandler{service: service, nonces: nonces}
}

// RegisterRoutes registers all public coupon routes.
func (h *CouponHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	coupons := r.Group("/coupons")
	coupons.Use(middleware.OptionalAuth(jwtManager))
	{
		coupons.POST("/validate", middleware.RequireNonce(h.nonces, auth.ActionValidateCoupon), h.ValidateCoupon)
		coupons.POST("/apply", middleware.RequireNonce(h.nonces, auth.ActionApplyCoupon), h.ApplyCoupon)
	}
}

// ValidateCoupon handles POST /api/v1/coupons/validate.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req application.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ValidateCoupon(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ApplyCoupon handles POST /api/v1/coupons/apply.
func (h *CouponHandler) ApplyCoupon(c *gin.Context) {
	var req application.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ApplyCoupon(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
