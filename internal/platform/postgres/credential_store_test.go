package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/platform/postgres"
	"github.com/phrazzld/genrelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var credentialRowColumns = []string{
	"id", "name", "secret", "cached_credits", "is_active", "manually_disabled",
	"last_checked_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestPostgresCredentialStore_ListAll(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	checked := created.Add(time.Minute)
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM credentials ORDER BY created_at, id`).
		WillReturnRows(sqlmock.NewRows(credentialRowColumns).
			AddRow(first.String(), "a", "sk-a", 500, true, false, checked, created, created).
			AddRow(second.String(), "b", "sk-b", 0, false, true, nil, created, created))

	creds, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 2)

	assert.Equal(t, first, creds[0].ID)
	assert.Equal(t, 500, creds[0].CachedCredits)
	require.NotNil(t, creds[0].LastCheckedAt)
	assert.True(t, checked.Equal(*creds[0].LastCheckedAt))

	assert.Equal(t, second, creds[1].ID)
	assert.True(t, creds[1].ManuallyDisabled)
	assert.Nil(t, creds[1].LastCheckedAt)
}

func TestPostgresCredentialStore_GetForUpdate(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())
	id := uuid.New()

	mock.ExpectQuery(`WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetForUpdate(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrCredentialNotFound)
}

func TestPostgresCredentialStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("inserts", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

		cred, err := domain.NewCredential("primary", "sk-primary")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO credentials`).
			WithArgs(cred.ID, "primary", "sk-primary", 0, true, false, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(context.Background(), cred))
	})

	t.Run("duplicate secret", func(t *testing.T) {
		t.Parallel()
		db, mock := newMockDB(t)
		s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

		cred, err := domain.NewCredential("dup", "sk-dup")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO credentials`).
			WillReturnError(newPgError("23505", "credentials_secret_key"))

		assert.ErrorIs(t, s.Create(context.Background(), cred), store.ErrCredentialExists)
	})

	t.Run("invalid entity", func(t *testing.T) {
		t.Parallel()
		db, _ := newMockDB(t)
		s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

		err := s.Create(context.Background(), &domain.Credential{ID: uuid.New()})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrEmptyCredentialSecret)
	})
}

func TestPostgresCredentialStore_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

	cred, err := domain.NewCredential("k", "sk-k")
	require.NoError(t, err)
	cred.ApplyBalance(0, time.Now())

	mock.ExpectExec(`UPDATE credentials`).
		WithArgs("k", 0, false, false, sqlmock.AnyArg(), sqlmock.AnyArg(), cred.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Update(context.Background(), cred), store.ErrCredentialNotFound)

	mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs(cred.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.Delete(context.Background(), cred.ID))
}

func TestPostgresCredentialStore_WithTx(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM credentials`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return s.WithTx(tx).Delete(ctx, uuid.New())
	})
	assert.NoError(t, err)
}

func TestPostgresCredentialStore_UpdateBalance(t *testing.T) {
	t.Parallel()

	checked := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	created := checked.Add(-time.Hour)

	t.Run("derives activation from the stored row", func(t *testing.T) {
		t.Parallel()

		db, mock := newMockDB(t)
		s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())
		id := uuid.New()

		mock.ExpectQuery(`SET cached_credits = \$1, last_checked_at = \$2, updated_at = \$2,\s+is_active = \(\$1 > 0 AND NOT manually_disabled\)\s+WHERE id = \$3\s+RETURNING`).
			WithArgs(250, checked, id).
			WillReturnRows(sqlmock.NewRows(credentialRowColumns).
				AddRow(id.String(), "k", "sk-k", 250, false, true, checked, created, checked))

		cred, err := s.UpdateBalance(context.Background(), id, 250, checked, store.ActivateWhenFunded)
		require.NoError(t, err)
		assert.Equal(t, 250, cred.CachedCredits)
		assert.True(t, cred.ManuallyDisabled)
		assert.False(t, cred.IsActive)
	})

	t.Run("demote only keeps the stored flag", func(t *testing.T) {
		t.Parallel()

		db, mock := newMockDB(t)
		s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())
		id := uuid.New()

		mock.ExpectQuery(`is_active = \(\$1 > 0 AND is_active\)`).
			WithArgs(0, checked, id).
			WillReturnRows(sqlmock.NewRows(credentialRowColumns).
				AddRow(id.String(), "k", "sk-k", 0, false, false, checked, created, checked))

		cred, err := s.UpdateBalance(context.Background(), id, -5, checked, store.DemoteOnly)
		require.NoError(t, err)
		assert.Equal(t, 0, cred.CachedCredits)
		assert.False(t, cred.IsActive)
	})

	t.Run("missing row", func(t *testing.T) {
		t.Parallel()

		db, mock := newMockDB(t)
		s := postgres.NewPostgresCredentialStore(db, logger.NopLogger())

		mock.ExpectQuery(`UPDATE credentials`).WillReturnError(sql.ErrNoRows)

		_, err := s.UpdateBalance(context.Background(), uuid.New(), 1, checked, store.DemoteOnly)
		assert.ErrorIs(t, err, store.ErrCredentialNotFound)
	})
}
