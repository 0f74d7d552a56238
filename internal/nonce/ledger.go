/**
 * @description
 * This file implements the nonce ledger for score signature requests. It is
 * the single source of truth for the per-player, per-tournament submission
 * nonce the on-chain tournament contract requires to match lastAccepted + 1,
 * which is what prevents signature replay and reordering.
 *
 * Key features:
 * - Atomic Issuance: Issue increments and stores the nonce in one critical
 *   section, so two concurrent requests for the same key can never receive
 *   the same nonce.
 * - Provisional Nonces: An issued nonce is provisional until confirmed (via
 *   Commit, fed by the on-chain acceptance path). Provisional issuance that
 *   is never confirmed expires after a TTL and rolls back, so abandoned
 *   claims do not permanently burn nonce slots.
 * - Tournament Isolation: Keys are independent across tournaments; the same
 *   player holds separate sequences in each.
 * - Case-Insensitive Keys: Addresses are lowercased before keying; every
 *   caller observes identical state regardless of input casing.
 */

package nonce

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultPendingTTL bounds how long an issued-but-unconfirmed nonce is held
// before the ledger rolls it back.
const DefaultPendingTTL = 15 * time.Minute

// DefaultSweepInterval is how often the rollback sweep runs.
const DefaultSweepInterval = time.Minute

// Stats summarizes ledger occupancy for monitoring.
type Stats struct {
	Tournaments int `json:"totalTournaments"`
	Players     int `json:"totalPlayers"`
}

// Ledger is the nonce-issuance contract. The in-memory implementation is
// valid for single-instance deployments and tests; the Redis implementation
// shares state across instances.
type Ledger interface {
	// Issue atomically reserves and returns the next nonce for the key.
	Issue(ctx context.Context, tournamentID int64, address string) (uint64, error)
	// NextNonce previews the nonce the next Issue would return without
	// reserving it. Diagnostic reads never perturb issuance state.
	NextNonce(ctx context.Context, tournamentID int64, address string) (uint64, error)
	// CurrentNonce returns the last confirmed nonce for the key, or false if
	// the key has no confirmed submissions.
	CurrentNonce(ctx context.Context, tournamentID int64, address string) (uint64, bool, error)
	// Commit unconditionally records nonce as confirmed for the key. It is
	// called once the contract has accepted the corresponding submission.
	Commit(ctx context.Context, tournamentID int64, address string, nonce uint64) error
	// ResetPlayer deletes the key, restoring its next nonce to 1.
	ResetPlayer(ctx context.Context, tournamentID int64, address string) error
	// ResetTournament deletes every key in the tournament.
	ResetTournament(ctx context.Context, tournamentID int64) error
	// Stats reports ledger occupancy.
	Stats(ctx context.Context) (Stats, error)
}

// record tracks one (tournament, player) key. confirmed is the last nonce
// the contract is known to have accepted; issued >= confirmed is the high
// water mark of provisional issuance.
type record struct {
	confirmed uint64
	issued    uint64
	issuedAt  time.Time
}

// MemoryLedger is the process-local ledger implementation. The two-level map
// mirrors the on-chain contract's (tournamentId, player) => nonce storage.
type MemoryLedger struct {
	mu         sync.RWMutex
	store      map[int64]map[string]*record
	pendingTTL time.Duration

	now func() time.Time
}

// NewMemoryLedger creates an in-memory ledger. A non-positive pendingTTL
// falls back to DefaultPendingTTL.
func NewMemoryLedger(pendingTTL time.Duration) *MemoryLedger {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &MemoryLedger{
		store:      make(map[int64]map[string]*record),
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// effectiveIssued returns the issuance high water mark, treating an expired
// provisional span as rolled back. Callers must hold at least a read lock.
func (l *MemoryLedger) effectiveIssued(rec *record, now time.Time) uint64 {
	if rec.issued > rec.confirmed && now.Sub(rec.issuedAt) > l.pendingTTL {
		return rec.confirmed
	}
	return rec.issued
}

// Issue atomically reserves the next nonce for the key. The first issuance
// for a key returns 1.
func (l *MemoryLedger) Issue(_ context.Context, tournamentID int64, address string) (uint64, error) {
	key := strings.ToLower(address)

	l.mu.Lock()
	defer l.mu.Unlock()

	players, exists := l.store[tournamentID]
	if !exists {
		players = make(map[string]*record)
		l.store[tournamentID] = players
	}

	now := l.now()
	rec, exists := players[key]
	if !exists {
		rec = &record{}
		players[key] = rec
	} else {
		rec.issued = l.effectiveIssued(rec, now)
	}

	rec.issued++
	rec.issuedAt = now
	return rec.issued, nil
}

// NextNonce previews the next nonce without reserving it.
func (l *MemoryLedger) NextNonce(_ context.Context, tournamentID int64, address string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, exists := l.lookup(tournamentID, address)
	if !exists {
		return 1, nil
	}
	return l.effectiveIssued(rec, l.now()) + 1, nil
}

// CurrentNonce returns the last confirmed nonce for the key.
func (l *MemoryLedger) CurrentNonce(_ context.Context, tournamentID int64, address string) (uint64, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, exists := l.lookup(tournamentID, address)
	if !exists || rec.confirmed == 0 {
		return 0, false, nil
	}
	return rec.confirmed, true, nil
}

// Commit records nonce as confirmed. It overwrites unconditionally and keeps
// the issuance high water mark at or above the confirmed value; sequencing
// discipline is the calling protocol's responsibility.
func (l *MemoryLedger) Commit(_ context.Context, tournamentID int64, address string, nonce uint64) error {
	key := strings.ToLower(address)

	l.mu.Lock()
	defer l.mu.Unlock()

	players, exists := l.store[tournamentID]
	if !exists {
		players = make(map[string]*record)
		l.store[tournamentID] = players
	}

	rec, exists := players[key]
	if !exists {
		rec = &record{}
		players[key] = rec
	}

	rec.confirmed = nonce
	if rec.issued < nonce {
		rec.issued = nonce
	}
	rec.issuedAt = l.now()
	return nil
}

// ResetPlayer deletes a single key (admin recovery after an on-chain desync).
func (l *MemoryLedger) ResetPlayer(_ context.Context, tournamentID int64, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if players, exists := l.store[tournamentID]; exists {
		delete(players, strings.ToLower(address))
		if len(players) == 0 {
			delete(l.store, tournamentID)
		}
	}
	return nil
}

// ResetTournament deletes every key in the tournament.
func (l *MemoryLedger) ResetTournament(_ context.Context, tournamentID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.store, tournamentID)
	return nil
}

// Stats reports how many tournaments and player keys the ledger holds.
func (l *MemoryLedger) Stats(_ context.Context) (Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{Tournaments: len(l.store)}
	for _, players := range l.store {
		stats.Players += len(players)
	}
	return stats, nil
}

// Run rolls back expired provisional nonces every interval until the context
// is cancelled.
func (l *MemoryLedger) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLedger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, players := range l.store {
		for _, rec := range players {
			if rec.issued > rec.confirmed && now.Sub(rec.issuedAt) > l.pendingTTL {
				rec.issued = rec.confirmed
			}
		}
	}
}

// lookup finds a record for the key; callers must hold l.mu.
func (l *MemoryLedger) lookup(tournamentID int64, address string) (*record, bool) {
	players, exists := l.store[tournamentID]
	if !exists {
		return nil, false
	}
	rec, exists := players[strings.ToLower(address)]
	return rec, exists
}

var _ Ledger = (*MemoryLedger)(nil)
