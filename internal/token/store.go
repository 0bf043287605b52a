// AngelaMos | 2026
// store.go

package token

import (
	"context"
	"time"
)

// Store is the persistence contract for refresh tokens. The lifecycle
// manager never issues raw queries; everything it needs from storage is
// expressed here, so backends can be swapped without touching lifecycle
// logic.
//
// Implementations must enforce two invariants:
//   - Value uniqueness: Insert fails with ErrDuplicateValue on collision.
//   - Monotonic revocation: ConditionalRevoke flips revoked only when it is
//     currently false, atomically, and reports how many records changed.
//     Zero means another caller already won the transition.
type Store interface {
	Insert(ctx context.Context, t *RefreshToken) error

	// FindByValue performs an exact-match lookup and returns ErrNotFound
	// when no record matches.
	FindByValue(ctx context.Context, value string) (*RefreshToken, error)

	// ConditionalRevoke is the compare-and-swap at the heart of rotation:
	// set revoked = true, stamping reason, revokedAt = now and the optional
	// replacedBy chain pointer, but only where value matches and revoked is
	// still false. The affected count is the CAS outcome.
	ConditionalRevoke(
		ctx context.Context,
		value, reason string,
		replacedBy *string,
		now time.Time,
	) (int64, error)

	// FindActiveBySubject returns every token for the subject that is
	// neither revoked nor expired at the given instant.
	FindActiveBySubject(
		ctx context.Context,
		subjectID string,
		now time.Time,
	) ([]RefreshToken, error)

	// DeleteExpired removes every token with expiresAt before now,
	// regardless of revocation state, and returns the count removed.
	// Deletion is storage reclamation only; an expired token that has not
	// been swept is still rejected everywhere.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
