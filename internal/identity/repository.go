// AngelaMos | 2026
// repository.go

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/carterperez-dev/templates/token-service/internal/core"
)

type repository struct {
	db core.DBTX
}

// NewRepository returns a read-only Provider over the subjects table.
func NewRepository(db core.DBTX) Provider {
	return &repository{db: db}
}

func (r *repository) GetByID(
	ctx context.Context,
	id string,
) (*Identity, error) {
	query := `
		SELECT id, email, name, password_hash, active, created_at
		FROM subjects
		WHERE id = $1`

	var ident Identity
	err := r.db.GetContext(ctx, &ident, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get identity: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.WrapStorageError("get identity", err)
	}

	return &ident, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Identity, error) {
	query := `
		SELECT id, email, name, password_hash, active, created_at
		FROM subjects
		WHERE email = $1`

	var ident Identity
	err := r.db.GetContext(ctx, &ident, query, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get identity by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.WrapStorageError("get identity by email", err)
	}

	return &ident, nil
}
