/**
 * @description
 * This file provides the Redis-backed implementation of the admission limiter.
 * It exists so that replay-protection-adjacent state (how often an address may
 * request a signature) is shared across oracle instances behind a load
 * balancer and survives restarts, which the in-memory limiter cannot offer.
 *
 * Key features:
 * - Atomic Decision: The check-and-increment runs as a single Lua script, so
 *   concurrent requests across instances cannot exceed the limit.
 * - Self-Expiring Windows: Window keys carry a TTL; Redis handles the cleanup
 *   the in-memory limiter needs a background sweep for.
 */

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript performs the fixed-window check-and-increment atomically.
// Returns {allowed, remaining, pttl}. A request at or over the limit does not
// increment the counter.
var allowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return {0, 0, redis.call('PTTL', KEYS[1])}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, tonumber(ARGV[1]) - count, redis.call('PTTL', KEYS[1])}
`)

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter is a fixed-window per-address rate limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter with the given policy.
func NewRedisLimiter(client *redis.Client, limit int, windowDuration time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowDuration <= 0 {
		windowDuration = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: windowDuration}
}

func (l *RedisLimiter) key(address string) string {
	return "ratelimit:sign:" + address
}

// Allow runs the atomic check-and-increment for one request from address.
func (l *RedisLimiter) Allow(ctx context.Context, address string) (Result, error) {
	values, err := allowScript.Run(ctx, l.client, []string{l.key(address)},
		l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(values) != 3 {
		return Result{}, fmt.Errorf("rate limit script returned %d values", len(values))
	}

	resetAt := time.Now().Add(time.Duration(values[2]) * time.Millisecond)
	return Result{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the window for an address.
func (l *RedisLimiter) Reset(ctx context.Context, address string) error {
	return l.client.Del(ctx, l.key(address)).Err()
}

// Status reports the active window for an address, or nil if none exists.
func (l *RedisLimiter) Status(ctx context.Context, address string) (*Status, error) {
	pipe := l.client.Pipeline()
	getCmd := pipe.Get(ctx, l.key(address))
	ttlCmd := pipe.PTTL(ctx, l.key(address))
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("rate limit status failed: %w", err)
	}

	count, err := getCmd.Int()
	if err != nil {
		return nil, fmt.Errorf("rate limit status failed: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Count:     count,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttlCmd.Val()),
	}, nil
}
