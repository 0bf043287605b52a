// AngelaMos | 2026
// repository.go

package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carterperez-dev/templates/token-service/internal/core"
)

// PostgresStore implements Store over the refresh_tokens table. The
// conditional update in ConditionalRevoke is the single concurrency-critical
// statement of the subsystem: the database's row lock makes the
// read-check-then-write of rotation atomic with respect to the revoked flag.
type PostgresStore struct {
	db core.DBTX
}

func NewPostgresStore(db core.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Insert(ctx context.Context, t *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, subject_id, value, issued_at, expires_at, revoked
		) VALUES (
			$1, $2, $3, $4, $5, false
		)`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.SubjectID,
		t.Value,
		t.IssuedAt,
		t.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert refresh token: %w", ErrDuplicateValue)
		}
		return core.WrapStorageError("insert refresh token", err)
	}

	return nil
}

func (s *PostgresStore) FindByValue(
	ctx context.Context,
	value string,
) (*RefreshToken, error) {
	query := `
		SELECT id, subject_id, value, issued_at, expires_at,
		       revoked, revoked_at, revoked_reason, replaced_by_value
		FROM refresh_tokens
		WHERE value = $1`

	var t RefreshToken
	err := s.db.GetContext(ctx, &t, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, core.WrapStorageError("find refresh token", err)
	}

	return &t, nil
}

func (s *PostgresStore) ConditionalRevoke(
	ctx context.Context,
	value, reason string,
	replacedBy *string,
	now time.Time,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true,
		    revoked_at = $2,
		    revoked_reason = $3,
		    replaced_by_value = $4
		WHERE value = $1 AND revoked = false`

	result, err := s.db.ExecContext(ctx, query, value, now, reason, replacedBy)
	if err != nil {
		return 0, core.WrapStorageError("revoke refresh token", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, core.WrapStorageError("revoke refresh token", err)
	}

	return rows, nil
}

func (s *PostgresStore) FindActiveBySubject(
	ctx context.Context,
	subjectID string,
	now time.Time,
) ([]RefreshToken, error) {
	query := `
		SELECT id, subject_id, value, issued_at, expires_at,
		       revoked, revoked_at, revoked_reason, replaced_by_value
		FROM refresh_tokens
		WHERE subject_id = $1
			AND revoked = false
			AND expires_at > $2
		ORDER BY issued_at DESC`

	var tokens []RefreshToken
	err := s.db.SelectContext(ctx, &tokens, query, subjectID, now)
	if err != nil {
		return nil, core.WrapStorageError("find active tokens", err)
	}

	return tokens, nil
}

func (s *PostgresStore) DeleteExpired(
	ctx context.Context,
	now time.Time,
) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1`

	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, core.WrapStorageError("delete expired tokens", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, core.WrapStorageError("delete expired tokens", err)
	}

	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
