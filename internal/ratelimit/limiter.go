package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/resilience"
	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin   int           // requests per client IP per minute
	BurstMultiplier int           // burst capacity of the in-memory bucket
	IdleTTL         time.Duration // in-memory buckets unused this long are dropped
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:   120,
		BurstMultiplier: 1,
		IdleTTL:         10 * time.Minute,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-IP window in Redis when it is reachable and a
// local token bucket otherwise.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	breaker      *resilience.CircuitBreaker
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*bucket
	fallbackMutex    sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter. redisClient may be nil.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	defaults := DefaultConfig()
	if config.IPLimitPerMin <= 0 {
		config.IPLimitPerMin = defaults.IPLimitPerMin
	}
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = defaults.BurstMultiplier
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}

	rl := &RateLimiter{
		redisClient: redisClient,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "redis_rate_limit",
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 1,
		}),
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*bucket),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupFallbackLimiters()

	return rl
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// AllowIP checks whether ip may make another request this minute
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:ip:%s", ip)
	return rl.allow(ctx, key, rl.config.IPLimitPerMin, time.Minute)
}

func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.redisLimiter != nil && rl.breaker.Allow() {
		var result *Result
		err := rl.breaker.Call(func() error {
			var err error
			result, err = rl.allowRedis(ctx, key, limit, period)
			return err
		})
		if err == nil {
			return result, nil
		}

		slog.Warn("Redis rate limit check failed, using fallback",
			"key", key, "error", err, "breaker", rl.breaker.State().String())
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, limit, period), nil
}

// allowRedis uses the GCRA window kept by redis_rate
func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// allowFallback uses an in-memory token bucket refilled at limit/period
func (rl *RateLimiter) allowFallback(key string, limit int, period time.Duration) *Result {
	now := time.Now()
	perToken := period / time.Duration(limit)

	rl.fallbackMutex.Lock()
	b, exists := rl.fallbackLimiters[key]
	if !exists {
		burst := limit * rl.config.BurstMultiplier
		b = &bucket{limiter: rate.NewLimiter(rate.Every(perToken), burst)}
		rl.fallbackLimiters[key] = b
	}
	b.lastSeen = now
	rl.fallbackMutex.Unlock()

	allowed := b.limiter.AllowN(now, 1)

	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	// time until the bucket is full again
	missing := b.limiter.Burst() - remaining
	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(missing) * perToken),
	}

	if !allowed {
		retry := perToken
		if r := b.limiter.ReserveN(now, 1); r.OK() {
			retry = r.DelayFrom(now)
			r.CancelAt(now)
		}
		if retry < time.Second {
			retry = time.Second
		}
		result.RetryAfter = retry
	}

	return result
}

// cleanupFallbackLimiters drops buckets that have been idle for IdleTTL
func (rl *RateLimiter) cleanupFallbackLimiters() {
	ticker := time.NewTicker(rl.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	removed := 0
	for key, b := range rl.fallbackLimiters {
		if now.Sub(b.lastSeen) > rl.config.IdleTTL {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Evicted idle rate limiters", "count", removed)
	}
	return removed
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	return map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"redis_breaker":     rl.breaker.Stats(),
		"fallback_limiters": fallbackCount,
		"ip_limit_per_min":  rl.config.IPLimitPerMin,
		"redis_pool":        rl.redisClient.GetPoolStats(),
	}
}

// Health returns the limiter statistics plus a live Redis check. An
// unreachable Redis is reported but does not fail the limiter, which keeps
// serving from the in-memory buckets.
func (rl *RateLimiter) Health(ctx context.Context) map[string]interface{} {
	stats := rl.GetStats()
	switch {
	case !rl.redisClient.IsEnabled():
		stats["redis"] = "disabled"
	default:
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := rl.redisClient.HealthCheck(pingCtx); err != nil {
			stats["redis"] = "unreachable"
			stats["redis_error"] = err.Error()
		} else {
			stats["redis"] = "connected"
		}
	}
	return stats
}
