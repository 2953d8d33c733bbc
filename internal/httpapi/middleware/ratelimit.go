package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KeyFunc picks the identity a request is limited by.
type KeyFunc func(c *gin.Context) string

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key. Idle buckets are dropped
// on the next sweep.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	every    time.Duration
	burst    int
	idle     time.Duration
	lastGC   time.Time
}

// NewRateLimiter allows perMinute requests per key with a burst of the same
// size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    time.Minute / time.Duration(perMinute),
		burst:    perMinute,
		idle:     10 * time.Minute,
		lastGC:   time.Now(),
	}
}

func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()
	r.mu.Lock()
	if now.Sub(r.lastGC) > r.idle {
		for k, e := range r.limiters {
			if now.Sub(e.lastSeen) > r.idle {
				delete(r.limiters, k)
			}
		}
		r.lastGC = now
	}
	e, ok := r.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(r.every), r.burst)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	r.mu.Unlock()
	return e.limiter.Allow()
}

func ClientIPKey(c *gin.Context) string { return c.ClientIP() }

// RateLimit rejects requests over the per-key budget with 429.
func RateLimit(r *RateLimiter, key KeyFunc, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if !r.Allow(k) {
			log.Warn("rate limit exceeded", zap.String("key", k), zap.String("path", c.FullPath()))
			common.Abort(c, common.ErrRateLimited)
			return
		}
		c.Next()
	}
}
