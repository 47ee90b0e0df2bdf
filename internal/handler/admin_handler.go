package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/middleware"
	"github.com/vielimo/service-booking/pkg/response"
)

// AdminHandler handles the admin dashboard: reports and the coupon engine.
type AdminHandler struct {
	bookingService *application.BookingService
	couponService  *application.CouponService
	nonces         *auth.NonceManager
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(bookingService *application.BookingService, couponService *application.CouponService, nonces *auth.NonceManager) *AdminHandler {
	return &AdminHandler{
		bookingService: bookingService,
		couponService:  couponService,
		nonces:         nonces,
	}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtManager))
	{
		admin.GET("/stats/bookings", middleware.RequireCapability(auth.CapViewReports), h.BookingStats)

		coupons := admin.Group("/coupons")
		coupons.Use(middleware.RequireCapability(auth.CapManageCoupons))
		{
			coupons.GET("", h.ListCoupons)
			coupons.GET("/cache", h.CacheStatus)
			coupons.DELETE("/cache", h.ClearCache)
			coupons.POST("/refresh-cache", middleware.RequireNonce(h.nonces, auth.ActionRefreshCache), h.RefreshCache)
			coupons.POST("/test-connection", middleware.RequireNonce(h.nonces, auth.ActionTestConnection), h.TestConnection)
		}
	}
}

// BookingStats handles GET /api/v1/admin/stats/bookings.
func (h *AdminHandler) BookingStats(c *gin.Context) {
	stats, err := h.bookingService.GetStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// ListCoupons handles GET /api/v1/admin/coupons?refresh=true.
func (h *AdminHandler) ListCoupons(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	coupons, err := h.couponService.ListCoupons(c.Request.Context(), force)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, coupons)
}

// CacheStatus handles GET /api/v1/admin/coupons/cache.
func (h *AdminHandler) CacheStatus(c *gin.Context) {
	status, err := h.couponService.CacheStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, status)
}

// ClearCache handles DELETE /api/v1/admin/coupons/cache.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if err := h.couponService.ClearCache(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"cleared": true})
}

// RefreshCache handles POST /api/v1/admin/coupons/refresh-cache.
func (h *AdminHandler) RefreshCache(c *gin.Context) {
	result, err := h.couponService.RefreshCache(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// TestConnection handles POST /api/v1/admin/coupons/test-connection.
func (h *AdminHandler) TestConnection(c *gin.Context) {
	title, err := h.couponService.TestConnection(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"connected": true, "spreadsheet_title": title})
}
