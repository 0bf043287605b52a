// AngelaMos | 2026
// lifecycle.go

package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/token-service/internal/core"
)

const (
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultStoreTimeout    = 5 * time.Second

	// maxValueAttempts bounds regeneration on value collision. One retry
	// already implies a broken random source; more than a few will not help.
	maxValueAttempts = 3
)

// Lifecycle owns rotation policy, revocation chaining and expiry rules for
// refresh tokens. It is stateless between calls; all durable state lives in
// the Store, and every store call carries a bounded timeout.
type Lifecycle struct {
	store        Store
	ttl          time.Duration
	storeTimeout time.Duration
}

func NewLifecycle(store Store, ttl, storeTimeout time.Duration) *Lifecycle {
	if ttl <= 0 {
		ttl = defaultRefreshTokenTTL
	}
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	return &Lifecycle{
		store:        store,
		ttl:          ttl,
		storeTimeout: storeTimeout,
	}
}

// CreateForSubject mints and persists a new refresh token. Value collisions
// are regenerated, never overwritten.
func (l *Lifecycle) CreateForSubject(
	ctx context.Context,
	subjectID string,
) (*RefreshToken, error) {
	return l.create(ctx, subjectID, time.Now().UTC())
}

func (l *Lifecycle) create(
	ctx context.Context,
	subjectID string,
	now time.Time,
) (*RefreshToken, error) {
	for attempt := 0; attempt < maxValueAttempts; attempt++ {
		value, err := core.GenerateTokenValue()
		if err != nil {
			return nil, fmt.Errorf("create refresh token: %w", err)
		}

		t := &RefreshToken{
			ID:        uuid.New().String(),
			SubjectID: subjectID,
			Value:     value,
			IssuedAt:  now,
			ExpiresAt: now.Add(l.ttl),
		}

		err = l.withTimeout(ctx, func(sctx context.Context) error {
			return l.store.Insert(sctx, t)
		})
		if errors.Is(err, ErrDuplicateValue) {
			slog.Warn("refresh token value collision, regenerating",
				"subject_id", subjectID,
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create refresh token: %w", err)
		}

		return t, nil
	}

	return nil, fmt.Errorf(
		"create refresh token: %w: value generation exhausted",
		core.ErrStorage,
	)
}

// Lookup returns the full record for an exact value match without mutating
// any state. Whether the owning subject is still valid is the caller's
// concern; subject status lives in a different store.
func (l *Lifecycle) Lookup(
	ctx context.Context,
	value string,
) (*RefreshToken, error) {
	var t *RefreshToken
	err := l.withTimeout(ctx, func(sctx context.Context) error {
		found, findErr := l.store.FindByValue(sctx, value)
		t = found
		return findErr
	})
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	return t, nil
}

// Rotate exchanges oldValue for a fresh token, revoking the old record and
// chaining the two. Exactly one concurrent caller presenting the same value
// can succeed: the old record's revoked flag is flipped by a conditional
// update, and a caller whose update affects zero rows observes ErrInactive
// and has its own freshly created replacement revoked rather than leaked.
//
// The revocation half is the safety-critical one. It runs on a context
// detached from the request's cancellation: once the replacement exists, an
// abandoned creation is merely an orphaned extra token, but a completed
// rotation that leaves the old token live would let a stolen value be
// replayed.
func (l *Lifecycle) Rotate(
	ctx context.Context,
	oldValue string,
) (*RefreshToken, error) {
	now := time.Now().UTC()

	old, err := l.Lookup(ctx, oldValue)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("rotate: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("rotate: %w", err)
	}

	if !old.IsActive(now) {
		return nil, fmt.Errorf("rotate: %w", newInactiveError(old))
	}

	replacement, err := l.create(ctx, old.SubjectID, now)
	if err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}

	revokeCtx := context.WithoutCancel(ctx)

	var affected int64
	err = l.withTimeout(revokeCtx, func(sctx context.Context) error {
		var revokeErr error
		affected, revokeErr = l.store.ConditionalRevoke(
			sctx,
			oldValue,
			ReasonRotated,
			&replacement.Value,
			now,
		)
		return revokeErr
	})
	if err != nil {
		// Ambiguous outcome: do not leave the replacement live.
		l.discardReplacement(revokeCtx, replacement, now)
		return nil, fmt.Errorf("rotate: %w", err)
	}

	if affected == 0 {
		// Lost the race: another rotation (or a revoke) got there first.
		l.discardReplacement(revokeCtx, replacement, now)
		return nil, fmt.Errorf("rotate: %w", l.lostRotationError(revokeCtx, oldValue))
	}

	slog.Info("refresh token rotated",
		"subject_id", old.SubjectID,
		"old_id", old.ID,
		"new_id", replacement.ID,
	)

	return replacement, nil
}

// discardReplacement revokes a replacement token created by a rotation that
// did not commit. Best effort: the token expires on its own either way.
func (l *Lifecycle) discardReplacement(
	ctx context.Context,
	replacement *RefreshToken,
	now time.Time,
) {
	err := l.withTimeout(ctx, func(sctx context.Context) error {
		_, revokeErr := l.store.ConditionalRevoke(
			sctx,
			replacement.Value,
			"rotation-conflict",
			nil,
			now,
		)
		return revokeErr
	})
	if err != nil {
		slog.Error("failed to revoke orphaned replacement token",
			"token_id", replacement.ID,
			"error", err,
		)
	}
}

// lostRotationError re-reads the contested record so the caller sees the
// winner's revocation reason ("rotated" on replay), falling back to a
// plain inactive error if the record cannot be read back.
func (l *Lifecycle) lostRotationError(
	ctx context.Context,
	value string,
) error {
	old, err := l.Lookup(ctx, value)
	if err != nil {
		return &InactiveError{Reason: ReasonRotated}
	}
	return newInactiveError(old)
}

// Revoke marks a token revoked with the given reason. Idempotent: revoking
// an already-revoked or unknown token is a no-op, and a second call never
// overwrites the first call's timestamp or reason.
func (l *Lifecycle) Revoke(
	ctx context.Context,
	value, reason string,
) error {
	now := time.Now().UTC()

	err := l.withTimeout(ctx, func(sctx context.Context) error {
		_, revokeErr := l.store.ConditionalRevoke(sctx, value, reason, nil, now)
		return revokeErr
	})
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeAllForSubject revokes every active token for a subject and returns
// the count affected. Used on logout and on account compromise.
func (l *Lifecycle) RevokeAllForSubject(
	ctx context.Context,
	subjectID string,
) (int64, error) {
	now := time.Now().UTC()

	var active []RefreshToken
	err := l.withTimeout(ctx, func(sctx context.Context) error {
		var findErr error
		active, findErr = l.store.FindActiveBySubject(sctx, subjectID, now)
		return findErr
	})
	if err != nil {
		return 0, fmt.Errorf("revoke all for subject: %w", err)
	}

	var revoked int64
	for i := range active {
		var affected int64
		err := l.withTimeout(ctx, func(sctx context.Context) error {
			var revokeErr error
			affected, revokeErr = l.store.ConditionalRevoke(
				sctx,
				active[i].Value,
				ReasonLogoutAll,
				nil,
				now,
			)
			return revokeErr
		})
		if err != nil {
			return revoked, fmt.Errorf("revoke all for subject: %w", err)
		}
		revoked += affected
	}

	slog.Info("revoked all refresh tokens for subject",
		"subject_id", subjectID,
		"count", revoked,
	)

	return revoked, nil
}

// ActiveForSubject lists the subject's currently active tokens, newest
// first where the store preserves order. Read-only; used for the session
// listing surface.
func (l *Lifecycle) ActiveForSubject(
	ctx context.Context,
	subjectID string,
) ([]RefreshToken, error) {
	now := time.Now().UTC()

	var active []RefreshToken
	err := l.withTimeout(ctx, func(sctx context.Context) error {
		var findErr error
		active, findErr = l.store.FindActiveBySubject(sctx, subjectID, now)
		return findErr
	})
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}

	return active, nil
}

// SweepExpired deletes every token past expiry. Safe to run concurrently
// with everything else: expired tokens are already rejected by activity
// checks, so deletion only reclaims storage.
func (l *Lifecycle) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	var removed int64
	err := l.withTimeout(ctx, func(sctx context.Context) error {
		var sweepErr error
		removed, sweepErr = l.store.DeleteExpired(sctx, now)
		return sweepErr
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}

	if removed > 0 {
		slog.Info("swept expired refresh tokens", "count", removed)
	}

	return removed, nil
}

func (l *Lifecycle) withTimeout(
	ctx context.Context,
	fn func(ctx context.Context) error,
) error {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	return fn(sctx)
}

// RefreshTokenTTL exposes the configured lifetime for callers that report
// expiry to clients.
func (l *Lifecycle) RefreshTokenTTL() time.Duration {
	return l.ttl
}
