package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a token bucket per caller, identified by API key when
// Auth ran and by client IP otherwise. Buckets idle for an hour are
// dropped; the sweeper stops with ctx.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)

	limiterFor := func(identity string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		e, ok := limiters[identity]
		if !ok {
			e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))}
			limiters[identity] = e
		}
		e.lastSeen = time.Now()
		return e.limiter
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-time.Hour)
				mu.Lock()
				for id, e := range limiters {
					if e.lastSeen.Before(cutoff) {
						delete(limiters, id)
					}
				}
				mu.Unlock()
			}
		}
	}()

	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key := c.GetString(IdentityKey); key != "" {
			identity = key
		}
		if !limiterFor(identity).Allow() {
			c.Header("Retry-After", retryAfter)
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, slow down")
			return
		}
		c.Next()
	}
}
