package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(nil, Config{IPLimitPerMin: limit}, metrics)
	t.Cleanup(limiter.Close)
	return limiter, metrics
}

func TestNewRedisClientWithoutAddress(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisOptions{})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
	assert.Equal(t, false, client.GetPoolStats()["enabled"])
}

func TestNewRedisClientUnreachable(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisOptions{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreFailure(err))
	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.Close())
}

func TestHealthReportsDisabledRedis(t *testing.T) {
	limiter, _ := newTestLimiter(t, 5)

	health := limiter.Health(context.Background())
	assert.Equal(t, "disabled", health["redis"])
	assert.Equal(t, 5, health["ip_limit_per_min"])
	assert.NotContains(t, health, "redis_error")
}

func TestFallbackBlocksAfterLimit(t *testing.T) {
	limiter, metrics := newTestLimiter(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.GreaterOrEqual(t, result.RetryAfter, time.Second)
	assert.Equal(t, int64(6), metrics.RateLimitFallbackCount)
}

func TestFallbackKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	first, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	other, err := limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	again, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, again.Allowed)
}

func TestEvictIdle(t *testing.T) {
	limiter, _ := newTestLimiter(t, 10)
	_, err := limiter.AllowIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, 0, limiter.evictIdle(time.Now()))
	assert.Equal(t, 1, limiter.evictIdle(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, limiter.GetStats()["fallback_limiters"])
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, metrics := newTestLimiter(t, 2)

	router := gin.New()
	router.Use(limiter.IPRateLimitMiddleware())
	router.GET("/api/epas", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/epas", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusOK, do().Code)

	w = do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Category string `json:"category"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit", body.Error.Category)
	assert.Equal(t, int64(1), metrics.RateLimitIPBlocks)
}
