package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/genrelay/internal/platform/postgres"
	"github.com/phrazzld/genrelay/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		SchemaName:     "public",
		TableName:      "test_table",
		ColumnName:     "test_column",
		ConstraintName: constraint,
	}
}

type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestMapError(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")

	tests := []struct {
		name   string
		err    error
		wantIs error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"duplicate secret", newPgError("23505", "credentials_secret_key"), store.ErrCredentialExists},
		{"duplicate upstream id", newPgError("23505", "generation_tasks_task_id_key"), store.ErrUpstreamTaskExists},
		{"other unique", newPgError("23505", "other_key"), store.ErrDuplicate},
		{"foreign key", newPgError("23503", "fk"), store.ErrInvalidEntity},
		{"check", newPgError("23514", "generation_tasks_status_check"), store.ErrInvalidEntity},
		{"not null", newPgError("23502", ""), store.ErrInvalidEntity},
		{"wrapped pg error", fmt.Errorf("exec: %w", newPgError("23505", "credentials_secret_key")), store.ErrCredentialExists},
		{"unmapped pg error", newPgError("40001", ""), nil},
		{"plain error", plain, plain},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := postgres.MapError(tc.err)
			if tc.wantIs == nil {
				assert.Same(t, tc.err, got)
				return
			}
			assert.ErrorIs(t, got, tc.wantIs)
		})
	}

	assert.NoError(t, postgres.MapError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsUniqueViolation(newPgError("23505", "")))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("wrapped: %w", newPgError("23505", ""))))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23503", "")))
	assert.False(t, postgres.IsUniqueViolation(errors.New("other")))
	assert.False(t, postgres.IsUniqueViolation(nil))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postgres.CheckRowsAffected(stubResult{rows: 1}, store.ErrCredentialNotFound))
	assert.ErrorIs(t, postgres.CheckRowsAffected(stubResult{rows: 0}, store.ErrCredentialNotFound), store.ErrCredentialNotFound)
	assert.ErrorIs(t, postgres.CheckRowsAffected(stubResult{rows: 0}, nil), store.ErrNotFound)
	assert.Error(t, postgres.CheckRowsAffected(stubResult{err: errors.New("boom")}, nil))
	assert.Error(t, postgres.CheckRowsAffected(nil, nil))
}
