package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/redact"
	"github.com/phrazzld/genrelay/internal/store"
)

// BalanceCache is the part of the key pool's credit cache the service needs.
type BalanceCache interface {
	Invalidate(secret string)
}

// PoolRefresher runs one synchronous refresh pass over every credential.
type PoolRefresher interface {
	RefreshAll(ctx context.Context) (*keypool.RefreshReport, error)
}

// CredentialService provides administrative credential operations
type CredentialService interface {
	// List returns every credential in pool order
	List(ctx context.Context) ([]*domain.Credential, error)

	// Get retrieves one credential
	Get(ctx context.Context, id uuid.UUID) (*domain.Credential, error)

	// Create adds a credential to the pool and checks its balance once
	Create(ctx context.Context, name, secret string) (*domain.Credential, error)

	// SetEnabled is the operator toggle; a disabled credential is never
	// re-enabled by balance checks
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*domain.Credential, error)

	// Delete removes a credential from the pool
	Delete(ctx context.Context, id uuid.UUID) error

	// Refresh runs a refresh pass now
	Refresh(ctx context.Context) (*keypool.RefreshReport, error)
}

// CredentialServiceOption configures optional collaborators.
type CredentialServiceOption func(*credentialServiceImpl)

// WithDB makes multi-step changes run in a database transaction.
func WithDB(db *sql.DB) CredentialServiceOption {
	return func(s *credentialServiceImpl) {
		s.db = db
	}
}

// WithOracle enables a balance check when a credential is created.
func WithOracle(oracle provider.CreditOracle) CredentialServiceOption {
	return func(s *credentialServiceImpl) {
		s.oracle = oracle
	}
}

// WithRefresher enables Refresh.
func WithRefresher(refresher PoolRefresher) CredentialServiceOption {
	return func(s *credentialServiceImpl) {
		s.refresher = refresher
	}
}

type credentialServiceImpl struct {
	creds     store.CredentialStore
	cache     BalanceCache
	db        *sql.DB
	oracle    provider.CreditOracle
	refresher PoolRefresher
	logger    *slog.Logger
}

// NewCredentialService creates a new CredentialService.
// It returns an error if any of the required dependencies are nil.
func NewCredentialService(
	creds store.CredentialStore,
	cache BalanceCache,
	logger *slog.Logger,
	opts ...CredentialServiceOption,
) (CredentialService, error) {
	if creds == nil {
		return nil, &CredentialServiceError{
			Operation: "create_service",
			Message:   "credential store cannot be nil",
		}
	}
	if cache == nil {
		return nil, &CredentialServiceError{
			Operation: "create_service",
			Message:   "balance cache cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &credentialServiceImpl{
		creds:  creds,
		cache:  cache,
		logger: logger.With("component", "credential_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// inTx runs fn against a transactional store when a database is configured,
// or directly against the store otherwise.
func (s *credentialServiceImpl) inTx(
	ctx context.Context,
	fn func(ctx context.Context, creds store.CredentialStore) error,
) error {
	if s.db == nil {
		return fn(ctx, s.creds)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.creds.WithTx(tx))
	})
}

// List returns every credential in pool order
func (s *credentialServiceImpl) List(ctx context.Context) ([]*domain.Credential, error) {
	creds, err := s.creds.ListAll(ctx)
	if err != nil {
		s.logger.Error("failed to list credentials", "error", err)
		return nil, NewCredentialServiceError("list_credentials", "failed to list credentials", err)
	}
	return creds, nil
}

// Get retrieves one credential
func (s *credentialServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	cred, err := s.creds.GetByID(ctx, id)
	if err != nil {
		return nil, NewCredentialServiceError("get_credential", "failed to get credential", err)
	}
	return cred, nil
}

// Create adds a credential. When an oracle is configured the balance is
// checked once so the credential enters the pool with a real value; a failed
// check leaves the balance unknown and selection checks it later.
func (s *credentialServiceImpl) Create(ctx context.Context, name, secret string) (*domain.Credential, error) {
	cred, err := domain.NewCredential(name, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if cred.Name == "" {
		cred.Name = redact.Secret(cred.Secret)
	}

	if s.oracle != nil {
		balance, checkErr := s.oracle.CheckCredits(ctx, cred.Secret)
		if checkErr != nil {
			s.logger.Warn("credit check failed for new credential",
				"credential", redact.Secret(cred.Secret),
				"error", redact.Error(checkErr))
		} else {
			cred.ApplyBalance(balance, time.Now())
		}
	}

	if err := s.creds.Create(ctx, cred); err != nil {
		s.logger.Error("failed to create credential",
			"error", err,
			"credential", redact.Secret(cred.Secret))
		return nil, NewCredentialServiceError("create_credential", "failed to save credential", err)
	}

	s.logger.Info("credential added",
		"credential_id", cred.ID,
		"is_active", cred.IsActive,
		"cached_credits", cred.CachedCredits)
	return cred, nil
}

// SetEnabled toggles a credential under a row lock. Balance writers only
// touch the balance columns and derive is_active from the committed row, so
// they cannot undo the operator's choice.
func (s *credentialServiceImpl) SetEnabled(
	ctx context.Context,
	id uuid.UUID,
	enabled bool,
) (*domain.Credential, error) {
	var updated *domain.Credential
	err := s.inTx(ctx, func(ctx context.Context, creds store.CredentialStore) error {
		cred, err := creds.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		cred.SetEnabled(enabled)
		if err := creds.Update(ctx, cred); err != nil {
			return err
		}
		updated = cred
		return nil
	})
	if err != nil {
		s.logger.Error("failed to toggle credential",
			"error", err,
			"credential_id", id,
			"enabled", enabled)
		return nil, NewCredentialServiceError("set_enabled", "failed to update credential", err)
	}

	s.cache.Invalidate(updated.Secret)
	s.logger.Info("credential toggled",
		"credential_id", id,
		"enabled", enabled,
		"is_active", updated.IsActive)
	return updated, nil
}

// Delete removes a credential and forgets its cached balance.
func (s *credentialServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	var secret string
	err := s.inTx(ctx, func(ctx context.Context, creds store.CredentialStore) error {
		cred, err := creds.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		secret = cred.Secret
		return creds.Delete(ctx, id)
	})
	if err != nil {
		s.logger.Error("failed to delete credential", "error", err, "credential_id", id)
		return NewCredentialServiceError("delete_credential", "failed to delete credential", err)
	}

	s.cache.Invalidate(secret)
	s.logger.Info("credential deleted", "credential_id", id)
	return nil
}

// Refresh runs a refresh pass now.
func (s *credentialServiceImpl) Refresh(ctx context.Context) (*keypool.RefreshReport, error) {
	if s.refresher == nil {
		return nil, ErrRefreshUnavailable
	}
	report, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		return nil, NewCredentialServiceError("refresh", "refresh pass failed", err)
	}
	return report, nil
}
