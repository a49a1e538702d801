package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymcore/internal/config"
	"gymcore/internal/metrics"
)

func newFrozenLimiter(scope string, l config.RateLimit, ttl time.Duration) (*RateLimiter, *time.Time) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(scope, l, ttl)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, now := newFrozenLimiter("test", config.RateLimit{RPS: 0.5, Burst: 2}, time.Minute)

	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/checkin", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/checkin", nil))
		return w
	}

	before := testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("test"))

	assert.Equal(t, http.StatusOK, do().Code)
	assert.Equal(t, http.StatusOK, do().Code)

	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("test")))

	*now = now.Add(2 * time.Second)
	assert.Equal(t, http.StatusOK, do().Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl, _ := newFrozenLimiter("test", config.RateLimit{RPS: 1, Burst: 1}, time.Minute)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl, now := newFrozenLimiter("test", config.RateLimit{RPS: 1, Burst: 1}, 3*time.Minute)

	rl.Allow("10.0.0.1")
	*now = now.Add(2 * time.Minute)
	rl.Allow("10.0.0.2")

	assert.Equal(t, 0, rl.evictIdle())

	*now = now.Add(90 * time.Second)
	assert.Equal(t, 1, rl.evictIdle())
	assert.NotContains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")

	// A returning client starts with a full bucket.
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_RunStopsOnCancel(t *testing.T) {
	rl := NewRateLimiter("test", config.RateLimit{RPS: 1, Burst: 1}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "limiter did not stop after cancel")
	}
}
