// AngelaMos | 2026
// repository_test.go

package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/token-service/internal/core"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStore(sqlx.NewDb(db, "sqlmock")), mock
}

func tokenColumns() []string {
	return []string{
		"id", "subject_id", "value", "issued_at", "expires_at",
		"revoked", "revoked_at", "revoked_reason", "replaced_by_value",
	}
}

func TestPostgresStoreInsert(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("tok-1", "subject-1", "value-1", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Insert(context.Background(), &RefreshToken{
		ID:        "tok-1",
		SubjectID: "subject-1",
		Value:     "value-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertUniqueViolation(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Insert(context.Background(), &RefreshToken{
		ID:    "tok-1",
		Value: "value-1",
	})
	assert.ErrorIs(t, err, ErrDuplicateValue)
}

func TestPostgresStoreInsertStorageError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnError(errors.New("connection refused"))

	err := store.Insert(context.Background(), &RefreshToken{
		ID:    "tok-1",
		Value: "value-1",
	})
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestPostgresStoreFindByValue(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(tokenColumns()).AddRow(
		"tok-1", "subject-1", "value-1", now, now.Add(time.Hour),
		false, nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT (.+) FROM refresh_tokens`).
		WithArgs("value-1").
		WillReturnRows(rows)

	tok, err := store.FindByValue(context.Background(), "value-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.ID)
	assert.Equal(t, "subject-1", tok.SubjectID)
	assert.False(t, tok.Revoked)
	assert.Nil(t, tok.RevokedAt)
}

func TestPostgresStoreFindByValueNotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM refresh_tokens`).
		WithArgs("no-such-value").
		WillReturnRows(sqlmock.NewRows(tokenColumns()))

	_, err := store.FindByValue(context.Background(), "no-such-value")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreConditionalRevoke(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()
	replacedBy := "value-2"

	mock.ExpectExec(`UPDATE refresh_tokens`).
		WithArgs("value-1", now, ReasonRotated, &replacedBy).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := store.ConditionalRevoke(
		context.Background(), "value-1", ReasonRotated, &replacedBy, now,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestPostgresStoreConditionalRevokeAlreadyRevoked(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE refresh_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := store.ConditionalRevoke(
		context.Background(), "value-1", "logout-all", nil, now,
	)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestPostgresStoreFindActiveBySubject(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(tokenColumns()).
		AddRow(
			"tok-2", "subject-1", "value-2", now, now.Add(time.Hour),
			false, nil, nil, nil,
		).
		AddRow(
			"tok-1", "subject-1", "value-1", now.Add(-time.Minute),
			now.Add(time.Hour), false, nil, nil, nil,
		)

	mock.ExpectQuery(`SELECT (.+) FROM refresh_tokens`).
		WithArgs("subject-1", now).
		WillReturnRows(rows)

	tokens, err := store.FindActiveBySubject(
		context.Background(), "subject-1", now,
	)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "tok-2", tokens[0].ID)
}

func TestPostgresStoreDeleteExpired(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM refresh_tokens`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
}
