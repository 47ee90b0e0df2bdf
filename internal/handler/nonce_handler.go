package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/middleware"
	"github.com/vielimo/service-booking/pkg/response"
)

// NonceHandler issues anti-forgery tokens to pages that render forms.
type NonceHandler struct {
	nonces *auth.NonceManager
}

// NewNonceHandler creates a new NonceHandler.
func NewNonceHandler(nonces *auth.NonceManager) *NonceHandler {
	return &NonceHandler{nonces: nonces}
}

// RegisterRoutes registers the nonce route.
func (h *NonceHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	r.GET("/nonce", middleware.OptionalAuth(jwtManager), h.Issue)
}

type nonceResponse struct {
	Action    string    `json:"action"`
	Nonce     string    `json:"nonce"`
	Header    string    `json:"header"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue handles GET /api/v1/nonce?action=.
func (h *NonceHandler) Issue(c *gin.Context) {
	action := c.Query("action")
	if !auth.IsKnownAction(action) {
		response.BadRequest(c, "unknown action")
		return
	}
	subject := ""
	if id, ok := middleware.GetUserID(c); ok {
		subject = id.String()
	}
	nonce, expires, err := h.nonces.Issue(action, subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nonceResponse{
		Action:    action,
		Nonce:     nonce,
		Header:    middleware.NonceHeader,
		ExpiresAt: expires,
	})
}
