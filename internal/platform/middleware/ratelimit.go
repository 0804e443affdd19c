package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig bounds request throughput per client. Buckets are keyed
// by tenant and client IP, so one hospital network behind a shared proxy
// cannot exhaust another's budget.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleEviction drops buckets not seen for this long. Zero keeps
	// every bucket for the life of the process.
	IdleEviction time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleEviction:      10 * time.Minute,
	}
}

// limiter tracks one token bucket per client key under a single lock.
// Bucket state is two words, so a per-bucket mutex buys nothing here.
type limiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	cfg       RateLimitConfig
	lastSweep time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		clients:   make(map[string]*bucket),
		cfg:       cfg,
		lastSweep: time.Now(),
	}
}

// take refills the client's bucket for the elapsed time and spends one
// token. It reports whether the request may proceed and, when it may not,
// how many seconds to wait before retrying.
func (l *limiter) take(key string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.IdleEviction > 0 && now.Sub(l.lastSweep) > l.cfg.IdleEviction {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > l.cfg.IdleEviction {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize)}
		l.clients[key] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
		if b.tokens > float64(l.cfg.BurstSize) {
			b.tokens = float64(l.cfg.BurstSize)
		}
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	retry := 1
	if l.cfg.RequestsPerSecond > 0 {
		retry = int((1-b.tokens)/l.cfg.RequestsPerSecond) + 1
	}
	return false, retry
}

// clientKey scopes the bucket to the resolved tenant when one is known.
func clientKey(c echo.Context) string {
	key := c.RealIP()
	if tid, ok := c.Get("tenant_id").(string); ok && tid != "" {
		return tid + ":" + key
	}
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid + ":" + key
	}
	return key
}

// RateLimit returns middleware enforcing a per-tenant, per-IP token bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := newLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter := l.take(clientKey(c), time.Now())
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
