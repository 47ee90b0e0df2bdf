package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vielimo/service-booking/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. It guards this process only;
// cross-instance limits are enforced in Redis by the services that need them.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		idle:     10 * time.Minute,
	}
}

// Allow consumes one token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	// opportunistic sweep keeps the map bounded without a janitor goroutine
	if len(l.visitors) > 10000 {
		for k, vv := range l.visitors {
			if now.Sub(vv.lastSeen) > l.idle {
				delete(l.visitors, k)
			}
		}
	}
	return v.limiter.Allow()
}

// Middleware rejects requests over budget with 429.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Envelope{
				Success: false,
				Error:   &response.ErrorBody{Code: "RATE_LIMITED", Message: "too many requests"},
			})
			return
		}
		c.Next()
	}
}
