package nonce

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const playerAddr = "0x1234567890123456789012345678901234567890"

func TestIssue_FirstNonceIsOne(t *testing.T) {
	ledger := NewMemoryLedger(0)
	issued, err := ledger.Issue(context.Background(), 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), issued)
}

func TestIssue_StrictlyIncreasingByOne(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	for want := uint64(1); want <= 5; want++ {
		issued, err := ledger.Issue(ctx, 1, playerAddr)
		require.NoError(t, err)
		assert.Equal(t, want, issued)
	}
}

func TestNextNonce_AfterOrderedCommits(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	for n := uint64(1); n <= 4; n++ {
		require.NoError(t, ledger.Commit(ctx, 1, playerAddr, n))
	}

	next, err := ledger.NextNonce(ctx, 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), next)
}

func TestNextNonce_DoesNotReserve(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		next, err := ledger.NextNonce(ctx, 1, playerAddr)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next, "diagnostic reads must not perturb issuance")
	}

	issued, err := ledger.Issue(ctx, 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), issued)
}

func TestTournamentsAreIndependent(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 5))

	next, err := ledger.NextNonce(ctx, 2, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	issued, err := ledger.Issue(ctx, 2, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), issued)
}

func TestAddressKeysAreCaseInsensitive(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	upper := "0x" + strings.ToUpper(playerAddr[2:])
	issued, err := ledger.Issue(ctx, 1, upper)
	require.NoError(t, err)
	require.Equal(t, uint64(1), issued)
	require.NoError(t, ledger.Commit(ctx, 1, upper, issued))

	current, exists, err := ledger.CurrentNonce(ctx, 1, playerAddr)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, uint64(1), current)

	next, err := ledger.NextNonce(ctx, 1, strings.ToLower(upper))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}

func TestCurrentNonce_NoRecord(t *testing.T) {
	ledger := NewMemoryLedger(0)
	_, exists, err := ledger.CurrentNonce(context.Background(), 1, playerAddr)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestResetPlayer_OnlyTouchesOneKey(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()
	sibling := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"

	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 3))
	require.NoError(t, ledger.Commit(ctx, 1, sibling, 7))
	require.NoError(t, ledger.Commit(ctx, 2, playerAddr, 9))

	require.NoError(t, ledger.ResetPlayer(ctx, 1, playerAddr))

	next, err := ledger.NextNonce(ctx, 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	next, err = ledger.NextNonce(ctx, 1, sibling)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), next)

	next, err = ledger.NextNonce(ctx, 2, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), next)
}

func TestResetTournament_LeavesOtherTournamentsUntouched(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()
	sibling := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"

	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 3))
	require.NoError(t, ledger.Commit(ctx, 1, sibling, 4))
	require.NoError(t, ledger.Commit(ctx, 2, playerAddr, 5))

	require.NoError(t, ledger.ResetTournament(ctx, 1))

	for _, address := range []string{playerAddr, sibling} {
		next, err := ledger.NextNonce(ctx, 1, address)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next)
	}

	next, err := ledger.NextNonce(ctx, 2, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next)
}

func TestIssue_ConcurrentSameKeyNeverDuplicates(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	const workers = 100
	var wg sync.WaitGroup
	issued := make(chan uint64, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := ledger.Issue(ctx, 1, playerAddr)
			require.NoError(t, err)
			issued <- n
		}()
	}
	wg.Wait()
	close(issued)

	seen := make(map[uint64]bool)
	for n := range issued {
		assert.False(t, seen[n], "nonce %d issued twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestProvisionalNonces_ExpireAndRollBack(t *testing.T) {
	ledger := NewMemoryLedger(10 * time.Minute)
	current := time.Unix(1_700_000_000, 0)
	ledger.now = func() time.Time { return current }
	ctx := context.Background()

	// Confirm nonce 2, then issue 3 and 4 provisionally.
	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 2))
	issued, err := ledger.Issue(ctx, 1, playerAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), issued)
	issued, err = ledger.Issue(ctx, 1, playerAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(4), issued)

	// Unexpired: the provisional span still counts.
	next, err := ledger.NextNonce(ctx, 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), next)

	// After the pending TTL, the unconfirmed span rolls back to the last
	// confirmed value so abandoned claims do not burn slots.
	current = current.Add(11 * time.Minute)
	next, err = ledger.NextNonce(ctx, 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)

	issued, err = ledger.Issue(ctx, 1, playerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), issued)
}

func TestSweep_RollsBackExpiredProvisionals(t *testing.T) {
	ledger := NewMemoryLedger(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	ledger.now = func() time.Time { return current }
	ctx := context.Background()

	_, err := ledger.Issue(ctx, 1, playerAddr)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	ledger.sweep()

	ledger.mu.RLock()
	rec := ledger.store[1][playerAddr]
	ledger.mu.RUnlock()
	assert.Equal(t, uint64(0), rec.issued)
}

func TestCommit_OverwritesUnconditionally(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 10))
	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 4))

	current, exists, err := ledger.CurrentNonce(ctx, 1, playerAddr)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, uint64(4), current)
}

func TestStats(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	require.NoError(t, ledger.Commit(ctx, 1, playerAddr, 1))
	require.NoError(t, ledger.Commit(ctx, 1, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", 1))
	require.NoError(t, ledger.Commit(ctx, 2, playerAddr, 1))

	stats, err := ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Tournaments)
	assert.Equal(t, 3, stats.Players)
}
