package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Handler serves liveness and readiness probes.
type Handler struct {
	service string
	checks  map[string]Check
}

// NewHandler creates a handler whose readiness probe pings db.
func NewHandler(db *gorm.DB, service string) *Handler {
	h := &Handler{service: service, checks: make(map[string]Check)}
	if db != nil {
		h.AddCheck("postgres", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	return h
}

// AddCheck registers an additional readiness check.
func (h *Handler) AddCheck(name string, check Check) {
	h.checks[name] = check
}

// RegisterRoutes mounts /health and /ready.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Liveness)
	r.GET("/ready", h.Readiness)
}

// Liveness always answers 200 while the process serves requests.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": h.service})
}

// Readiness runs every registered check with a short timeout.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "service": h.service, "checks": results})
}
