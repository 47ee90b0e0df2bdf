package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vielimo/service-booking/internal/application"
)

// WebhookHandler receives payment provider callbacks. It answers in the provider's
// {"success","message"} format instead of the API envelope.
type WebhookHandler struct {
	service *application.WebhookService
	logger  *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(service *application.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/sepay", h.SePay)
}

// SePay handles POST /api/v1/webhooks/sepay.
func (h *WebhookHandler) SePay(c *gin.Context) {
	if !h.service.Authorize(c.GetHeader("Authorization")) {
		h.logger.Warn("rejected webhook with bad api key", zap.String("ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, application.WebhookResult{Success: false, Message: "unauthorized"})
		return
	}

	var req application.SePayWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, application.WebhookResult{Success: false, Message: "invalid payload: " + err.Error()})
		return
	}

	result, err := h.service.HandleSePay(c.Request.Context(), req)
	if err != nil {
		// a 5xx makes the provider retry the delivery
		h.logger.Error("webhook processing failed", zap.Int64("transaction_id", req.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, application.WebhookResult{Success: false, Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, result)
}
