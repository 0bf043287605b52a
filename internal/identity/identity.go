// AngelaMos | 2026
// identity.go

package identity

import (
	"context"
	"time"
)

// Identity is a read-only view of a subject in the external identity store.
// This service never creates, updates or deletes identities; it only reads
// them to embed claims and to confirm a subject is still active.
type Identity struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}

// Provider is the collaborator contract against the identity store.
type Provider interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
}
