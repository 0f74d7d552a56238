/**
 * @description
 * This file provides the Redis-backed nonce ledger. A single oracle instance
 * can rely on the in-memory ledger, but behind a load balancer or across
 * redeploys the anti-replay guarantee only holds if every instance observes
 * the same nonce sequence — which Redis's atomic INCR gives us.
 *
 * @notes
 * - In shared mode issuance is the commit: INCR reserves and stores the nonce
 *   in one step, and there is no provisional rollback. Operators recover from
 *   burned slots with the admin reset endpoints, as with an on-chain desync.
 */

package nonce

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisLedger is the shared-store ledger implementation.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a Redis-backed ledger.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func nonceKey(tournamentID int64, address string) string {
	return fmt.Sprintf("nonce:%d:%s", tournamentID, strings.ToLower(address))
}

// Issue atomically reserves and stores the next nonce for the key.
func (l *RedisLedger) Issue(ctx context.Context, tournamentID int64, address string) (uint64, error) {
	value, err := l.client.Incr(ctx, nonceKey(tournamentID, address)).Result()
	if err != nil {
		return 0, fmt.Errorf("nonce issue failed: %w", err)
	}
	return uint64(value), nil
}

// NextNonce previews the next nonce without reserving it.
func (l *RedisLedger) NextNonce(ctx context.Context, tournamentID int64, address string) (uint64, error) {
	current, exists, err := l.CurrentNonce(ctx, tournamentID, address)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 1, nil
	}
	return current + 1, nil
}

// CurrentNonce returns the last stored nonce for the key.
func (l *RedisLedger) CurrentNonce(ctx context.Context, tournamentID int64, address string) (uint64, bool, error) {
	value, err := l.client.Get(ctx, nonceKey(tournamentID, address)).Uint64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("nonce read failed: %w", err)
	}
	return value, true, nil
}

// Commit unconditionally overwrites the stored nonce for the key.
func (l *RedisLedger) Commit(ctx context.Context, tournamentID int64, address string, nonce uint64) error {
	if err := l.client.Set(ctx, nonceKey(tournamentID, address), nonce, 0).Err(); err != nil {
		return fmt.Errorf("nonce commit failed: %w", err)
	}
	return nil
}

// ResetPlayer deletes a single key.
func (l *RedisLedger) ResetPlayer(ctx context.Context, tournamentID int64, address string) error {
	return l.client.Del(ctx, nonceKey(tournamentID, address)).Err()
}

// ResetTournament deletes every key in the tournament via SCAN, so the
// request path is never blocked by a KEYS call.
func (l *RedisLedger) ResetTournament(ctx context.Context, tournamentID int64) error {
	pattern := fmt.Sprintf("nonce:%d:*", tournamentID)
	iter := l.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("tournament reset failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("tournament reset scan failed: %w", err)
	}
	return nil
}

// Stats counts nonce keys. Tournament cardinality is not tracked separately
// in shared mode; Players reports the total key count.
func (l *RedisLedger) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	tournaments := make(map[string]struct{})
	iter := l.client.Scan(ctx, 0, "nonce:*", 100).Iterator()
	for iter.Next(ctx) {
		stats.Players++
		parts := strings.SplitN(iter.Val(), ":", 3)
		if len(parts) == 3 {
			tournaments[parts[1]] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats scan failed: %w", err)
	}
	stats.Tournaments = len(tournaments)
	return stats, nil
}

var _ Ledger = (*RedisLedger)(nil)
