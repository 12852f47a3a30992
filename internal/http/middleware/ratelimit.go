// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-caller token-bucket limiter mounted in front
// of the catalog, cart, wishlist and order routes. Buckets are keyed by the
// demo identity (X-User-ID) when one is present and by client IP otherwise.
// Idle buckets are swept opportunistically so memory stays bounded.
//
// Order replays flagged by IdempotencyValidator skip the limiter entirely.
// The limiter is process-local; every replica enforces its own budget.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultBucketIdle = 10 * time.Minute
	defaultSweepEvery = 5000
)

// KeyFunc maps a request to its rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by caller identity ("user:<id>") and falls back
// to the client address ("ip:<addr>") for anonymous traffic.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyUserID); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key. It is safe for concurrent
// use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	idle    time.Duration
	sweepAt int
	calls   int
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst. A burst <= 0 is treated as 1 and a negative rps as 0.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if rps < 0 {
		rps = 0
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		idle:    defaultBucketIdle,
		sweepAt: defaultSweepEvery,
	}
}

// bucketFor returns the limiter for key. Every sweepAt calls the idle buckets
// are dropped first, so a stale bucket for key itself starts over full.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.calls++
	if rl.calls >= rl.sweepAt {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.calls = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the per-key limit. Allowed requests carry
// X-RateLimit-Limit and X-RateLimit-Remaining; rejected ones get 429, a
// Retry-After in whole seconds and the standard error body:
//
//	{"request_id": "<uuid>", "code": "rate_limited", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.bucketFor(rl.key(c), now)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))

		if lim.AllowN(now, 1) {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
			c.Next()
			return
		}

		rateLimited.Inc()
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("Retry-After", strconv.Itoa(retryAfter(rl.limit, lim.TokensAt(now))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter is the number of whole seconds until the next token, never
// less than one.
func retryAfter(limit rate.Limit, tokens float64) int {
	if limit <= 0 || tokens >= 1 {
		return 1
	}
	secs := math.Ceil((1 - tokens) / float64(limit))
	if secs < 1 {
		return 1
	}
	return int(secs)
}
