// Package ratelimit caps how many questions a caller may ask per window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crm-assistant/internal/common/logger"
)

const keyPrefix = "ratelimit:ask:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter per caller stored in Redis.
type Limiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	logger logger.Logger
}

func New(client *redis.Client, limit int, window time.Duration, log logger.Logger) *Limiter {
	return &Limiter{
		redis:  client,
		limit:  limit,
		window: window,
		logger: log,
	}
}

// Allow counts one request for callerID. When Redis is unreachable the request
// is allowed and the failure logged.
func (l *Limiter) Allow(ctx context.Context, callerID string) Decision {
	key := keyPrefix + callerID

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", map[string]interface{}{
			"callerId": callerID,
			"error":    err.Error(),
		})
		return Decision{Allowed: true, Remaining: l.limit}
	}
	if count == 1 {
		// The window starts with the first request and is never extended.
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit window", map[string]interface{}{
				"callerId": callerID,
				"error":    err.Error(),
			})
		}
	}

	if int(count) <= l.limit {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}
	}

	retry, err := l.redis.TTL(ctx, key).Result()
	if err != nil || retry <= 0 {
		// A counter without expiry would block the caller for good.
		_ = l.redis.Expire(ctx, key, l.window).Err()
		retry = l.window
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
}

// Reset clears the window of callerID.
func (l *Limiter) Reset(ctx context.Context, callerID string) error {
	if err := l.redis.Del(ctx, keyPrefix+callerID).Err(); err != nil {
		return fmt.Errorf("reset rate limit for %s: %w", callerID, err)
	}
	return nil
}
