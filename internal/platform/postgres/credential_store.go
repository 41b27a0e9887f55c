package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/store"
)

const credentialColumns = `id, name, secret, cached_credits, is_active, manually_disabled,
	last_checked_at, created_at, updated_at`

// PostgresCredentialStore implements the store.CredentialStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCredentialStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCredentialStore creates a new PostgreSQL implementation of the CredentialStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresCredentialStore(db store.DBTX, logger *slog.Logger) *PostgresCredentialStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCredentialStore{
		db:     db,
		logger: logger.With(slog.String("component", "credential_store")),
	}
}

// Ensure PostgresCredentialStore implements store.CredentialStore interface
var _ store.CredentialStore = (*PostgresCredentialStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var (
		c             domain.Credential
		lastCheckedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Secret,
		&c.CachedCredits,
		&c.IsActive,
		&c.ManuallyDisabled,
		&lastCheckedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time.UTC()
		c.LastCheckedAt = &t
	}
	return &c, nil
}

// ListAll implements store.CredentialStore.ListAll
func (s *PostgresCredentialStore) ListAll(ctx context.Context) ([]*domain.Credential, error) {
	return s.list(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at, id`)
}

// ListActive implements store.CredentialStore.ListActive
func (s *PostgresCredentialStore) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	return s.list(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE is_active ORDER BY created_at, id`)
}

func (s *PostgresCredentialStore) list(ctx context.Context, query string) ([]*domain.Credential, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to list credentials", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var creds []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			log.Error("failed to scan credential", slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating credential rows", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return creds, nil
}

// GetByID implements store.CredentialStore.GetByID
func (s *PostgresCredentialStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	return s.get(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
}

// GetForUpdate implements store.CredentialStore.GetForUpdate
func (s *PostgresCredentialStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	return s.get(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, id)
}

func (s *PostgresCredentialStore) get(ctx context.Context, query string, id uuid.UUID) (*domain.Credential, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	c, err := scanCredential(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("credential not found", slog.String("credential_id", id.String()))
			return nil, store.ErrCredentialNotFound
		}
		log.Error("failed to get credential",
			slog.String("error", err.Error()),
			slog.String("credential_id", id.String()))
		return nil, MapError(err)
	}
	return c, nil
}

// Create implements store.CredentialStore.Create
// Returns store.ErrCredentialExists if the secret is already stored.
func (s *PostgresCredentialStore) Create(ctx context.Context, c *domain.Credential) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		log.Warn("credential validation failed during create",
			slog.String("error", err.Error()),
			slog.String("credential_id", c.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.Name,
		c.Secret,
		c.CachedCredits,
		c.IsActive,
		c.ManuallyDisabled,
		c.LastCheckedAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create credential",
			slog.String("error", err.Error()),
			slog.String("credential_id", c.ID.String()))
		return MapError(err)
	}

	log.Info("credential created", slog.String("credential_id", c.ID.String()))
	return nil
}

// Update implements store.CredentialStore.Update
func (s *PostgresCredentialStore) Update(ctx context.Context, c *domain.Credential) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	query := `
		UPDATE credentials
		SET name = $1, cached_credits = $2, is_active = $3, manually_disabled = $4,
			last_checked_at = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		c.Name,
		c.CachedCredits,
		c.IsActive,
		c.ManuallyDisabled,
		c.LastCheckedAt,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		log.Error("failed to update credential",
			slog.String("error", err.Error()),
			slog.String("credential_id", c.ID.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrCredentialNotFound)
}

// activationExpr maps each rule to the SQL that derives is_active from the
// new balance ($1) and the row as currently stored.
var activationExpr = map[store.ActivationRule]string{
	store.ActivateWhenFunded: `$1 > 0 AND NOT manually_disabled`,
	store.DemoteOnly:         `$1 > 0 AND is_active`,
}

// UpdateBalance implements store.CredentialStore.UpdateBalance
func (s *PostgresCredentialStore) UpdateBalance(
	ctx context.Context,
	id uuid.UUID,
	balance int,
	checkedAt time.Time,
	rule store.ActivationRule,
) (*domain.Credential, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	expr, ok := activationExpr[rule]
	if !ok {
		return nil, fmt.Errorf("%w: unknown activation rule %d", store.ErrInvalidEntity, rule)
	}
	if balance < 0 {
		balance = 0
	}

	query := `
		UPDATE credentials
		SET cached_credits = $1, last_checked_at = $2, updated_at = $2,
			is_active = (` + expr + `)
		WHERE id = $3
		RETURNING ` + credentialColumns

	c, err := scanCredential(s.db.QueryRowContext(ctx, query, balance, checkedAt.UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		log.Error("failed to update credential balance",
			slog.String("error", err.Error()),
			slog.String("credential_id", id.String()))
		return nil, MapError(err)
	}
	return c, nil
}

// Delete implements store.CredentialStore.Delete
func (s *PostgresCredentialStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete credential",
			slog.String("error", err.Error()),
			slog.String("credential_id", id.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrCredentialNotFound); err != nil {
		return err
	}
	log.Info("credential deleted", slog.String("credential_id", id.String()))
	return nil
}

// WithTx implements store.CredentialStore.WithTx
func (s *PostgresCredentialStore) WithTx(tx *sql.Tx) store.CredentialStore {
	return &PostgresCredentialStore{
		db:     tx,
		logger: s.logger,
	}
}
