package redis

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window counter: the first hit in a window starts
// the window's expiry.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// SessionSubmitKey is the limiter key for submissions to one session.
func SessionSubmitKey(sessionID string) string {
	return "rate_limit:submit:" + sessionID
}

// SubmitLimiter caps submissions per session with a RateLimiter.
type SubmitLimiter struct {
	rl     *RateLimiter
	limit  int
	window time.Duration
}

func NewSubmitLimiter(rl *RateLimiter, limit int, window time.Duration) *SubmitLimiter {
	return &SubmitLimiter{rl: rl, limit: limit, window: window}
}

func (l *SubmitLimiter) Allow(ctx context.Context, sessionID string) (bool, error) {
	return l.rl.Allow(ctx, SessionSubmitKey(sessionID), l.limit, l.window)
}
