package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
)

// Limiter decides whether a caller identified by key may proceed. The
// limiter is constructed and injected explicitly so handlers never reach
// for process-global state and tests can substitute a fake.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter: the first request in a window
// creates a key with a TTL, subsequent requests increment it.
type RedisLimiter struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{Client: client, Limit: limit, Window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := l.Client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.Client.Expire(ctx, redisKey, l.Window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.Limit), nil
}

// NopLimiter allows every request.
type NopLimiter struct{}

func (NopLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

// Middleware enforces a per-operator limit. A limiter backend failure is
// logged and the request is let through: losing rate limiting briefly is
// preferable to blocking every scanner at the gate.
func Middleware(limiter Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := auth.OperatorID(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Warn("RATELIMIT", fmt.Sprintf("limiter unavailable for %s: %v", key, err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
