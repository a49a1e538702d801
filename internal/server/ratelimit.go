package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gymcore/internal/api"
	"gymcore/internal/config"
	"gymcore/internal/logger"
	"gymcore/internal/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP for a single route scope.
// Buckets idle for longer than ttl are dropped by Run.
type RateLimiter struct {
	scope string
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(scope string, l config.RateLimit, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		scope:   scope,
		limit:   rate.Limit(l.RPS),
		burst:   l.Burst,
		ttl:     ttl,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Run evicts idle clients every minute until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.evictIdle(); n > 0 {
				logger.Debug("rate limiter evicted idle clients", "scope", rl.scope, "count", n)
			}
		}
	}
}

func (rl *RateLimiter) evictIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.ttl)
	evicted := 0
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			evicted++
		}
	}
	return evicted
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware rejects a client over its budget with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := "1"
	if rl.limit > 0 && rl.limit < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(rl.limit))))
	}

	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		metrics.RecordRateLimited(rl.scope)
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "rate limit exceeded"})
	}
}
