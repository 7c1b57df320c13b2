package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ipRateLimiter keeps one token bucket per client IP. Idle buckets are swept inline on access.
type ipRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	now       func() time.Time
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newIPRateLimiter(perMinute int, clock func() time.Time) *ipRateLimiter {
	return &ipRateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		now:     clock,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *ipRateLimiter) allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		for ip, entry := range l.clients {
			if now.Sub(entry.lastAccess) >= limiterIdleTTL {
				delete(l.clients, ip)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.clients[clientIP]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientIP] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *ipRateLimiter) retryAfterSeconds() int {
	if l.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1.0 / float64(l.limit)))
}

func (h *httpHandler) limitForgotPassword(c *gin.Context) {
	if h.forgotLimit.allow(c.ClientIP()) {
		c.Next()
		return
	}
	h.logger.Warn("rate limit exceeded",
		zap.String("client_ip", c.ClientIP()),
		zap.String("limit_type", "forgot_password"),
	)
	c.Header("Retry-After", strconv.Itoa(h.forgotLimit.retryAfterSeconds()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":   "rate_limited",
		"message": "too many password reset requests, please try again later",
	})
}
