// AngelaMos | 2026
// lifecycle_test.go

package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewLifecycle(store, time.Hour, time.Second), store
}

func insertToken(t *testing.T, store *MemoryStore, tok *RefreshToken) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), tok))
}

func TestCreateForSubject(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	tok, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	assert.NotEmpty(t, tok.ID)
	assert.NotEmpty(t, tok.Value)
	assert.Equal(t, "subject-1", tok.SubjectID)
	assert.False(t, tok.Revoked)
	assert.Nil(t, tok.RevokedAt)
	assert.Nil(t, tok.ReplacedByValue)
	assert.Equal(t, tok.IssuedAt.Add(time.Hour), tok.ExpiresAt)
	assert.True(t, tok.IsActive(time.Now().UTC()))
}

func TestCreateForSubjectUniqueValues(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for range 50 {
		tok, err := lc.CreateForSubject(ctx, "subject-1")
		require.NoError(t, err)
		assert.False(t, seen[tok.Value], "duplicate token value generated")
		seen[tok.Value] = true
	}
}

func TestLookupReturnsStoredRecord(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	created, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	found, err := lc.Lookup(ctx, created.Value)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, created.SubjectID, found.SubjectID)
}

func TestLookupUnknownValue(t *testing.T) {
	lc, _ := newTestLifecycle(t)

	_, err := lc.Lookup(context.Background(), "no-such-value")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRotate(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	old, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	replacement, err := lc.Rotate(ctx, old.Value)
	require.NoError(t, err)

	assert.Equal(t, "subject-1", replacement.SubjectID)
	assert.NotEqual(t, old.Value, replacement.Value)
	assert.True(t, replacement.IsActive(time.Now().UTC()))

	revoked, err := lc.Lookup(ctx, old.Value)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	require.NotNil(t, revoked.RevokedReason)
	assert.Equal(t, ReasonRotated, *revoked.RevokedReason)
	require.NotNil(t, revoked.ReplacedByValue)
	assert.Equal(t, replacement.Value, *revoked.ReplacedByValue)

	// The replacement is minted at the same instant the old record is
	// revoked, so the chain has no gap and no overlap in timestamps.
	require.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, *revoked.RevokedAt, replacement.IssuedAt)
}

func TestRotateUnknownValue(t *testing.T) {
	lc, _ := newTestLifecycle(t)

	_, err := lc.Rotate(context.Background(), "no-such-value")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRotateExpiredToken(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()

	expired := &RefreshToken{
		ID:        "tok-1",
		SubjectID: "subject-1",
		Value:     "expired-value",
		IssuedAt:  time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	insertToken(t, store, expired)

	_, err := lc.Rotate(ctx, expired.Value)
	require.ErrorIs(t, err, ErrInactive)

	var inactive *InactiveError
	require.ErrorAs(t, err, &inactive)
	assert.True(t, inactive.Expired)
}

func TestRotateReplayReportsRotatedReason(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	old, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	_, err = lc.Rotate(ctx, old.Value)
	require.NoError(t, err)

	// Presenting the already-rotated value again must fail with the
	// winner's revocation reason and must not mint a second live token.
	_, err = lc.Rotate(ctx, old.Value)
	require.ErrorIs(t, err, ErrInactive)

	var inactive *InactiveError
	require.ErrorAs(t, err, &inactive)
	assert.Equal(t, ReasonRotated, inactive.Reason)
	assert.False(t, inactive.Expired)

	active, err := lc.ActiveForSubject(ctx, "subject-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRotateTwoGenerations(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	gen0, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	gen1, err := lc.Rotate(ctx, gen0.Value)
	require.NoError(t, err)

	gen2, err := lc.Rotate(ctx, gen1.Value)
	require.NoError(t, err)

	// Replaying either ancestor reports the same rotated reason.
	for _, stale := range []string{gen0.Value, gen1.Value} {
		_, err := lc.Rotate(ctx, stale)
		var inactive *InactiveError
		require.ErrorAs(t, err, &inactive)
		assert.Equal(t, ReasonRotated, inactive.Reason)
	}

	active, err := lc.ActiveForSubject(ctx, "subject-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, gen2.ID, active[0].ID)
}

func TestRevokeIdempotent(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	tok, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	require.NoError(t, lc.Revoke(ctx, tok.Value, "revoked-by-subject"))

	first, err := lc.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	require.True(t, first.Revoked)

	// A second revocation with a different reason must not disturb the
	// first call's timestamp or reason.
	require.NoError(t, lc.Revoke(ctx, tok.Value, "something-else"))

	second, err := lc.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, first.RevokedAt, second.RevokedAt)
	assert.Equal(t, first.RevokedReason, second.RevokedReason)
}

func TestRevokeUnknownValueIsNoOp(t *testing.T) {
	lc, _ := newTestLifecycle(t)

	assert.NoError(t, lc.Revoke(context.Background(), "no-such-value", "x"))
}

func TestRevokeAllForSubjectIsScoped(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	for range 3 {
		_, err := lc.CreateForSubject(ctx, "subject-1")
		require.NoError(t, err)
	}
	other, err := lc.CreateForSubject(ctx, "subject-2")
	require.NoError(t, err)

	count, err := lc.RevokeAllForSubject(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	active, err := lc.ActiveForSubject(ctx, "subject-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	untouched, err := lc.Lookup(ctx, other.Value)
	require.NoError(t, err)
	assert.True(t, untouched.IsActive(time.Now().UTC()))
}

func TestSweepExpiredLeavesLiveTokens(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()

	live, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	revoked, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)
	require.NoError(t, lc.Revoke(ctx, revoked.Value, "revoked-by-subject"))

	insertToken(t, store, &RefreshToken{
		ID:        "tok-old",
		SubjectID: "subject-1",
		Value:     "expired-value",
		IssuedAt:  time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	})

	removed, err := lc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = lc.Lookup(ctx, "expired-value")
	assert.ErrorIs(t, err, ErrNotFound)

	// Sweep is about expiry only: both the live token and the revoked
	// but unexpired one keep their records.
	_, err = lc.Lookup(ctx, live.Value)
	assert.NoError(t, err)

	_, err = lc.Lookup(ctx, revoked.Value)
	assert.NoError(t, err)
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ctx := context.Background()

	old, err := lc.CreateForSubject(ctx, "subject-1")
	require.NoError(t, err)

	const workers = 16

	var wg sync.WaitGroup
	results := make([]error, workers)

	wg.Add(workers)
	for i := range workers {
		go func() {
			defer wg.Done()
			_, results[i] = lc.Rotate(ctx, old.Value)
		}()
	}
	wg.Wait()

	var winners, losers int
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInactive):
			losers++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}

	assert.Equal(t, 1, winners, "exactly one rotation must win")
	assert.Equal(t, workers-1, losers)

	// The winner's replacement is the only live token; every loser's
	// orphaned replacement must have been revoked.
	active, err := lc.ActiveForSubject(ctx, "subject-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
