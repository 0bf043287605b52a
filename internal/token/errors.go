// AngelaMos | 2026
// errors.go

package token

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the presented value has no matching record. Transport
	// layers should surface it identically to ErrInactive so callers cannot
	// probe which values ever existed.
	ErrNotFound = errors.New("refresh token not found")

	// ErrInactive means the token exists but is revoked or expired. The
	// concrete failure carries an InactiveError with the specific reason.
	ErrInactive = errors.New("refresh token inactive")

	// ErrDuplicateValue is returned by stores when an inserted value collides
	// with an existing one. The probability is negligible at 256 bits of
	// entropy, but the store contract must never silently overwrite.
	ErrDuplicateValue = errors.New("refresh token value already exists")
)

// InactiveError reports why a refresh token cannot be used. Reason is
// "expired" for time-driven inactivity, otherwise the stored revocation
// reason ("rotated", "logout-all", ...). Expired distinguishes the two so
// callers can decide whether a revoked-because-rotated token should trigger
// reuse handling.
type InactiveError struct {
	Reason  string
	Expired bool
}

func (e *InactiveError) Error() string {
	if e.Expired {
		return "refresh token inactive: expired"
	}
	return fmt.Sprintf("refresh token inactive: revoked: %s", e.Reason)
}

func (e *InactiveError) Is(target error) bool {
	return target == ErrInactive
}

func newInactiveError(t *RefreshToken) *InactiveError {
	if t.Revoked {
		return &InactiveError{Reason: t.revocationReason()}
	}
	return &InactiveError{Reason: "expired", Expired: true}
}
