// AngelaMos | 2026
// entity.go

package token

import (
	"time"
)

// Revocation reasons written by this package. The gateway may pass its own
// reasons through Revoke; these two are fixed because other components key
// behavior off them (reuse detection, bulk logout).
const (
	ReasonRotated   = "rotated"
	ReasonLogoutAll = "logout-all"
)

// RefreshToken is the persisted long-lived credential. Value is a 256-bit
// opaque secret, unique across all tokens and compared only by exact match.
// Revoked is monotonic: once true it never returns to false, and RevokedAt,
// RevokedReason and ReplacedByValue are immutable after the transition.
type RefreshToken struct {
	ID              string     `db:"id"`
	SubjectID       string     `db:"subject_id"`
	Value           string     `db:"value"`
	IssuedAt        time.Time  `db:"issued_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	Revoked         bool       `db:"revoked"`
	RevokedAt       *time.Time `db:"revoked_at"`
	RevokedReason   *string    `db:"revoked_reason"`
	ReplacedByValue *string    `db:"replaced_by_value"`
}

// IsExpired reports whether the token is past its expiry at the given
// instant. Expiry is inclusive: a token is expired the moment now reaches
// ExpiresAt.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}

func (t *RefreshToken) revocationReason() string {
	if t.RevokedReason != nil {
		return *t.RevokedReason
	}
	return "revoked"
}
