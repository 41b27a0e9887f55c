package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
)

// ActivationRule decides the active flag written together with a balance.
type ActivationRule int

const (
	// ActivateWhenFunded sets the credential active exactly when the balance is
	// positive and no operator has disabled it.
	ActivateWhenFunded ActivationRule = iota
	// DemoteOnly keeps the current flag unless the balance is zero; it never
	// turns a credential on.
	DemoteOnly
)

// CredentialStore persists provider credentials. Each call is atomic per row;
// callers never need cross-row transactions.
// Version: 1.0
type CredentialStore interface {
	// ListAll returns every stored credential ordered by creation time, so
	// that round-robin positions are stable between calls.
	ListAll(ctx context.Context) ([]*domain.Credential, error)

	// ListActive returns only credentials with IsActive set, in the same order.
	ListActive(ctx context.Context) ([]*domain.Credential, error)

	// GetByID retrieves a credential by its ID.
	// Returns ErrCredentialNotFound if the credential does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error)

	// GetForUpdate retrieves a credential and locks its row until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Credential, error)

	// Create stores a new credential.
	// Returns ErrCredentialExists if the secret is already stored.
	Create(ctx context.Context, credential *domain.Credential) error

	// Update saves the mutable fields of a credential (name, balance,
	// activation flags, last check time).
	// Returns ErrCredentialNotFound if the credential does not exist.
	Update(ctx context.Context, credential *domain.Credential) error

	// UpdateBalance records an observed balance and check time and derives the
	// active flag from the stored row according to rule, in one atomic write.
	// Name and the operator's disable marker are never touched, so a balance
	// write racing an administrative toggle cannot undo it. The stored
	// credential after the write is returned.
	// Returns ErrCredentialNotFound if the credential does not exist.
	UpdateBalance(
		ctx context.Context,
		id uuid.UUID,
		balance int,
		checkedAt time.Time,
		rule ActivationRule,
	) (*domain.Credential, error)

	// Delete removes a credential.
	// Returns ErrCredentialNotFound if the credential does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new CredentialStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) CredentialStore
}
