// AngelaMos | 2026
// memory_test.go

package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreInsertRejectsDuplicateValue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tok := &RefreshToken{
		ID:        "tok-1",
		SubjectID: "subject-1",
		Value:     "value-1",
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	require.NoError(t, store.Insert(ctx, tok))

	dup := *tok
	dup.ID = "tok-2"
	assert.ErrorIs(t, store.Insert(ctx, &dup), ErrDuplicateValue)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreConditionalRevokeIsCompareAndSwap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &RefreshToken{
		ID:        "tok-1",
		SubjectID: "subject-1",
		Value:     "value-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, store.Insert(ctx, tok))

	replacedBy := "value-2"
	affected, err := store.ConditionalRevoke(
		ctx, "value-1", ReasonRotated, &replacedBy, now,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Second attempt sees the flag already flipped.
	affected, err = store.ConditionalRevoke(
		ctx, "value-1", "another-reason", nil, now.Add(time.Minute),
	)
	require.NoError(t, err)
	assert.Zero(t, affected)

	stored, err := store.FindByValue(ctx, "value-1")
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedReason)
	assert.Equal(t, ReasonRotated, *stored.RevokedReason)
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, now, *stored.RevokedAt)
}

func TestMemoryStoreConditionalRevokeUnknownValue(t *testing.T) {
	store := NewMemoryStore()

	affected, err := store.ConditionalRevoke(
		context.Background(), "no-such-value", "x", nil, time.Now().UTC(),
	)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestMemoryStoreFindByValueReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &RefreshToken{
		ID:        "tok-1",
		SubjectID: "subject-1",
		Value:     "value-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}))

	found, err := store.FindByValue(ctx, "value-1")
	require.NoError(t, err)

	// Mutating the returned record must not touch the stored one.
	found.Revoked = true

	again, err := store.FindByValue(ctx, "value-1")
	require.NoError(t, err)
	assert.False(t, again.Revoked)
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &RefreshToken{
		ID: "tok-live", SubjectID: "s", Value: "live",
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &RefreshToken{
		ID: "tok-dead", SubjectID: "s", Value: "dead",
		IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreHonorsContextCancellation(t *testing.T) {
	store := NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.FindByValue(ctx, "value-1")
	assert.ErrorIs(t, err, context.Canceled)
}
