package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/response"
)

const (
	userIDKey = "user_id"
	roleKey   = "user_role"
)

// NonceHeader carries the per-action anti-forgery token.
const NonceHeader = "X-Nonce"

// AuthMiddleware requires a valid bearer access token.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := GetRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient role")
	}
}

// RequireCapability allows only roles that hold capability.
func RequireCapability(capability auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := GetRole(c)
		if !auth.Can(role, capability) {
			response.Forbidden(c, "missing capability: "+string(capability))
			return
		}
		c.Next()
	}
}

// RequireNonce verifies the anti-forgery header for action. Authenticated callers must
// present a nonce issued to their own user ID.
func RequireNonce(nonces *auth.NonceManager, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := ""
		if id, ok := GetUserID(c); ok {
			subject = id.String()
		}
		if err := nonces.Verify(c.GetHeader(NonceHeader), action, subject); err != nil {
			response.Forbidden(c, "security check failed, reload the page and try again")
			return
		}
		c.Next()
	}
}

// OptionalAuth populates the user when a valid bearer token is present and never rejects.
func OptionalAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && token != "" {
			if claims, err := jwtManager.ValidateToken(token); err == nil {
				c.Set(userIDKey, claims.UserID)
				c.Set(roleKey, claims.Role)
			}
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user ID.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetRole returns the authenticated user's role.
func GetRole(c *gin.Context) (string, bool) {
	v, ok := c.Get(roleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
