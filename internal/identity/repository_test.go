// AngelaMos | 2026
// repository_test.go

package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/token-service/internal/core"
)

func newRepoWithMock(t *testing.T) (Provider, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func subjectColumns() []string {
	return []string{
		"id", "email", "name", "password_hash", "active", "created_at",
	}
}

func TestGetByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(subjectColumns()).AddRow(
		"subject-1", "ada@example.com", "Ada", "$argon2id$...", true, now,
	)

	mock.ExpectQuery(`SELECT (.+) FROM subjects`).
		WithArgs("subject-1").
		WillReturnRows(rows)

	ident, err := repo.GetByID(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", ident.Email)
	assert.True(t, ident.Active)
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM subjects`).
		WithArgs("no-such-subject").
		WillReturnRows(sqlmock.NewRows(subjectColumns()))

	_, err := repo.GetByID(context.Background(), "no-such-subject")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGetByEmailLowercases(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(subjectColumns()).AddRow(
		"subject-1", "ada@example.com", "Ada", "$argon2id$...", true, now,
	)

	mock.ExpectQuery(`SELECT (.+) FROM subjects`).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	ident, err := repo.GetByEmail(context.Background(), "Ada@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "subject-1", ident.ID)
}

func TestGetByEmailStorageError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM subjects`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetByEmail(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, core.ErrStorage)
}
