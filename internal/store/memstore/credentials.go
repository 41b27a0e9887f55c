// Package memstore provides in-memory implementations of the store
// interfaces for tests. Records are copied on the way in and out so callers
// cannot mutate stored state by accident.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/store"
)

// CredentialStore implements store.CredentialStore in memory.
type CredentialStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domain.Credential

	// Optional failure hooks; a non-nil return is passed to the caller.
	ListErr   error
	UpdateErr func(cred *domain.Credential) error

	// Updates counts successful Update and UpdateBalance calls.
	Updates int
}

var _ store.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a store preloaded with creds.
func NewCredentialStore(creds ...*domain.Credential) *CredentialStore {
	s := &CredentialStore{items: make(map[uuid.UUID]*domain.Credential)}
	for _, c := range creds {
		s.items[c.ID] = copyCredential(c)
	}
	return s
}

// ListAll returns every credential ordered by CreatedAt then ID.
func (s *CredentialStore) ListAll(ctx context.Context) ([]*domain.Credential, error) {
	return s.list(func(*domain.Credential) bool { return true })
}

// ListActive returns active credentials in ListAll order.
func (s *CredentialStore) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	return s.list(func(c *domain.Credential) bool { return c.IsActive })
}

func (s *CredentialStore) list(keep func(*domain.Credential) bool) ([]*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ListErr != nil {
		return nil, s.ListErr
	}

	out := make([]*domain.Credential, 0, len(s.items))
	for _, c := range s.items {
		if keep(c) {
			out = append(out, copyCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// GetByID returns a copy of the credential.
func (s *CredentialStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[id]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	return copyCredential(c), nil
}

// GetForUpdate behaves like GetByID.
func (s *CredentialStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	return s.GetByID(ctx, id)
}

// Create stores a credential, rejecting duplicate secrets.
func (s *CredentialStore) Create(ctx context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.Secret == cred.Secret {
			return store.ErrCredentialExists
		}
	}
	s.items[cred.ID] = copyCredential(cred)
	return nil
}

// Update replaces the stored credential.
func (s *CredentialStore) Update(ctx context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		if err := s.UpdateErr(cred); err != nil {
			return err
		}
	}
	if _, ok := s.items[cred.ID]; !ok {
		return store.ErrCredentialNotFound
	}
	s.items[cred.ID] = copyCredential(cred)
	s.Updates++
	return nil
}

// UpdateBalance applies the balance to the stored record under the store
// lock, so it always sees the latest administrative flags.
func (s *CredentialStore) UpdateBalance(
	ctx context.Context,
	id uuid.UUID,
	balance int,
	checkedAt time.Time,
	rule store.ActivationRule,
) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	next := copyCredential(current)
	switch rule {
	case store.DemoteOnly:
		next.DemoteOnExhaustion(balance, checkedAt)
	default:
		next.ApplyBalance(balance, checkedAt)
	}
	if s.UpdateErr != nil {
		if err := s.UpdateErr(next); err != nil {
			return nil, err
		}
	}
	s.items[id] = next
	s.Updates++
	return copyCredential(next), nil
}

// Delete removes a credential.
func (s *CredentialStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrCredentialNotFound
	}
	delete(s.items, id)
	return nil
}

// WithTx returns the same store; transactions are not modeled.
func (s *CredentialStore) WithTx(tx *sql.Tx) store.CredentialStore {
	return s
}

// SetListErr changes ListErr while other goroutines may be reading.
func (s *CredentialStore) SetListErr(err error) {
	s.mu.Lock()
	s.ListErr = err
	s.mu.Unlock()
}

// Get returns the stored credential for assertions, or nil.
func (s *CredentialStore) Get(id uuid.UUID) *domain.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[id]
	if !ok {
		return nil
	}
	return copyCredential(c)
}

// UpdateCount returns Updates under the lock.
func (s *CredentialStore) UpdateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Updates
}

func copyCredential(c *domain.Credential) *domain.Credential {
	cp := *c
	if c.LastCheckedAt != nil {
		at := *c.LastCheckedAt
		cp.LastCheckedAt = &at
	}
	return &cp
}
