package httpapi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimiterType distinguishes rate-limit buckets by how the caller is
// identified.
type LimiterType string

const (
	// IPLimiter limits by client IP address.
	IPLimiter LimiterType = "ip"
	// KeyLimiter limits by the caller's x-api-key/Bearer credential.
	KeyLimiter LimiterType = "key"
)

// LimitConfig is one route class's sliding-window budget.
type LimitConfig struct {
	Requests int           // requests allowed per Window
	Window   time.Duration // sliding window length
}

// RateLimitConfig configures the whole rate-limit middleware.
type RateLimitConfig struct {
	Enabled bool

	// Default applies to every route not covered by a more specific entry.
	Default LimitConfig
	// Webhook applies to POST /webhook/github, which GitHub may call in
	// bursts during a backfill.
	Webhook LimitConfig

	// RedisURL selects the distributed backend; empty falls back to the
	// in-memory limiter.
	RedisURL string
}

// DefaultRateLimitConfig returns mimir's default rate-limit budgets.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: true,
		Default: LimitConfig{Requests: 60, Window: time.Minute},
		Webhook: LimitConfig{Requests: 120, Window: time.Minute},
	}
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed      bool
	Remaining    int64
	Limit        int64
	RetryAfter   time.Duration
	CurrentCount int64
}

// RateLimiter is a sliding-window limiter with a Redis backend and an
// in-memory fallback, grounded on the teacher's internal/security/ratelimit
// package (sliding-window algorithm, Redis-unavailable fallback), trimmed
// to the one algorithm mimir's HTTP layer needs.
type RateLimiter struct {
	cfg      RateLimitConfig
	redis    *redis.Client
	inMemory *inMemoryLimiter
}

// NewRateLimiter builds a RateLimiter. If cfg.RedisURL is set but
// unparsable, it returns an error; a reachable-but-down Redis is not
// checked here (first use surfaces that, same as the teacher's lazy
// connection style for this concern).
func NewRateLimiter(cfg RateLimitConfig) (*RateLimiter, error) {
	rl := &RateLimiter{cfg: cfg, inMemory: newInMemoryLimiter()}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("httpapi: parsing MIMIR_REDIS_URL: %w", err)
		}
		rl.redis = redis.NewClient(opts)
	}
	return rl, nil
}

// Allow checks identifier against limitConfig's sliding window, using Redis
// when configured and falling back to the in-memory limiter on any Redis
// error so a Redis outage fails open to local limiting rather than
// blocking every request.
func (rl *RateLimiter) Allow(ctx context.Context, limiterType LimiterType, identifier string, limitConfig LimitConfig) (Result, error) {
	if !rl.cfg.Enabled {
		return Result{Allowed: true}, nil
	}

	key := rl.buildKey(limiterType, identifier)
	now := time.Now().UnixMilli()
	windowStart := now - limitConfig.Window.Milliseconds()

	if rl.redis != nil {
		result, err := rl.allowRedis(ctx, key, limitConfig, now, windowStart)
		if err == nil {
			return result, nil
		}
	}
	return rl.inMemory.allow(key, limitConfig, now, windowStart), nil
}

func (rl *RateLimiter) buildKey(limiterType LimiterType, identifier string) string {
	sanitized := strings.NewReplacer(":", "_", " ", "_").Replace(identifier)
	return fmt.Sprintf("mimir:ratelimit:%s:%s", limiterType, sanitized)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limitConfig LimitConfig, now, windowStart int64) (Result, error) {
	if err := rl.redis.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now}).Err(); err != nil {
		return Result{}, fmt.Errorf("redis zadd: %w", err)
	}
	if err := rl.redis.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", windowStart)).Err(); err != nil {
		return Result{}, fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	count, err := rl.redis.ZCard(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis zcard: %w", err)
	}
	if err := rl.redis.Expire(ctx, key, limitConfig.Window*2).Err(); err != nil {
		return Result{}, fmt.Errorf("redis expire: %w", err)
	}

	allowed := count <= int64(limitConfig.Requests)
	remaining := int64(limitConfig.Requests) - count
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = limitConfig.Window
	}

	return Result{
		Allowed:      allowed,
		Remaining:    remaining,
		Limit:        int64(limitConfig.Requests),
		RetryAfter:   retryAfter,
		CurrentCount: count,
	}, nil
}

// inMemoryLimiter is the fallback sliding-window limiter used when Redis
// is unconfigured or unreachable.
type inMemoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]int64
}

func newInMemoryLimiter() *inMemoryLimiter {
	return &inMemoryLimiter{requests: make(map[string][]int64)}
}

func (l *inMemoryLimiter) allow(key string, limitConfig LimitConfig, now, windowStart int64) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.requests[key][:0]
	for _, ts := range l.requests[key] {
		if ts > windowStart {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < limitConfig.Requests
	if allowed {
		kept = append(kept, now)
	}

	if len(kept) > 0 {
		l.requests[key] = kept
	} else {
		delete(l.requests, key)
	}

	remaining := int64(limitConfig.Requests) - int64(len(kept))
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	if !allowed && len(kept) > 0 {
		retryAfter = time.Duration(windowStart-kept[0]) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = limitConfig.Window
		}
	}

	return Result{
		Allowed:      allowed,
		Remaining:    remaining,
		Limit:        int64(limitConfig.Requests),
		RetryAfter:   retryAfter,
		CurrentCount: int64(len(kept)),
	}
}
