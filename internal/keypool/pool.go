package keypool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/redact"
	"github.com/phrazzld/genrelay/internal/store"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxConcurrentChecks bounds oracle calls made by a single Select.
const maxConcurrentChecks = 8

// oracleCheckTimeout bounds a shared credit check.
const oracleCheckTimeout = 30 * time.Second

// FallbackName is the name given to the statically configured credential.
const FallbackName = "fallback"

// Manager selects credentials for new submissions.
//
// Every Select re-derives the valid set (active and balance > 0) and advances
// a shared cursor modulo its size, so load spreads across the valid set and an
// exhausted credential is skipped on the very next call. Oracle calls and
// store writes never run under the cursor lock.
type Manager struct {
	store    store.CredentialStore
	cache    *CreditCache
	oracle   provider.CreditOracle
	fallback string
	now      func() time.Time
	logger   *slog.Logger

	checks singleflight.Group

	mu     sync.Mutex
	cursor int
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithFallbackSecret configures the credential used when the store is empty.
func WithFallbackSecret(secret string) ManagerOption {
	return func(m *Manager) {
		m.fallback = secret
	}
}

// WithManagerClock overrides the time stamped on persisted checks.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(
	credentials store.CredentialStore,
	cache *CreditCache,
	oracle provider.CreditOracle,
	logger *slog.Logger,
	opts ...ManagerOption,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  credentials,
		cache:  cache,
		oracle: oracle,
		now:    time.Now,
		logger: logger.With("component", "key_pool"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Select returns the credential to use for the next submission, or
// ErrNoCapacity when no known credential is active with credits left.
func (m *Manager) Select(ctx context.Context) (*domain.Credential, error) {
	creds, err := m.candidates(ctx)
	if err != nil {
		return nil, err
	}

	balances := m.balances(ctx, creds)
	valid := lo.Filter(creds, func(c *domain.Credential, i int) bool {
		return c.Usable(balances[i])
	})

	if len(valid) == 0 {
		logger.FromContextOrDefault(ctx, m.logger).Warn("no credential has capacity",
			"known_credentials", len(creds))
		return nil, ErrNoCapacity
	}

	m.mu.Lock()
	m.cursor = (m.cursor + 1) % len(valid)
	chosen := valid[m.cursor]
	m.mu.Unlock()

	return chosen, nil
}

// PollCredentials returns the credentials usable for free, read-only calls
// such as status polls, active ones first. Balance is not considered. The
// static fallback is appended when it is configured and not already stored.
func (m *Manager) PollCredentials(ctx context.Context) ([]*domain.Credential, error) {
	creds, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	active := func(c *domain.Credential, _ int) bool { return c.IsActive }
	ordered := append(lo.Filter(creds, active), lo.Reject(creds, active)...)

	if m.fallback != "" && !lo.ContainsBy(creds, func(c *domain.Credential) bool { return c.Secret == m.fallback }) {
		ordered = append(ordered, m.fallbackCredential())
	}
	if len(ordered) == 0 {
		return nil, ErrNoCredentials
	}
	return ordered, nil
}

// Consume lowers the cached balance hint for secret after a submission.
func (m *Manager) Consume(secret string, credits int) {
	m.cache.Debit(secret, credits)
}

func (m *Manager) candidates(ctx context.Context) ([]*domain.Credential, error) {
	creds, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(creds) == 0 && m.fallback != "" {
		return []*domain.Credential{m.fallbackCredential()}, nil
	}
	return creds, nil
}

func (m *Manager) fallbackCredential() *domain.Credential {
	return &domain.Credential{
		Name:     FallbackName,
		Secret:   m.fallback,
		IsActive: true,
	}
}

// balances resolves the balance of each credential, indexed like creds.
func (m *Manager) balances(ctx context.Context, creds []*domain.Credential) []int {
	balances := make([]int, len(creds))

	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for i, cred := range creds {
		g.Go(func() error {
			balances[i] = m.balance(ctx, cred)
			return nil
		})
	}
	_ = g.Wait()

	return balances
}

// balance returns the cached balance or asks the oracle on a miss.
// Concurrent misses for one secret share a single check. The shared check runs
// detached from any one caller's context, bounded by oracleCheckTimeout, and
// each caller waits on it only as long as its own context allows. An oracle
// failure counts as zero credits for this attempt and leaves both cache and
// store untouched.
func (m *Manager) balance(ctx context.Context, cred *domain.Credential) int {
	if balance, fresh := m.cache.Get(cred.Secret); fresh {
		return balance
	}

	log := logger.FromContextOrDefault(ctx, m.logger)
	id, secret := cred.ID, cred.Secret
	ch := m.checks.DoChan(secret, func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), oracleCheckTimeout)
		defer cancel()
		return m.check(checkCtx, id, secret)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		log.Warn("credit check abandoned, treating credential as empty",
			"credential_id", id,
			"error", ctx.Err())
		return 0
	}
	if res.Err != nil {
		log.Warn("credit check failed, treating credential as empty",
			"credential_id", id,
			"secret", redact.Secret(secret),
			"error", res.Err)
		return 0
	}

	result := res.Val.(checkResult)
	cred.ApplyBalance(result.balance, result.checkedAt)
	if result.stored != nil {
		cred.IsActive = result.stored.IsActive
		cred.ManuallyDisabled = result.stored.ManuallyDisabled
	}
	return result.balance
}

// checkResult is the outcome of one shared credit check.
type checkResult struct {
	balance   int
	checkedAt time.Time
	// stored is the row after the balance write, nil when nothing was persisted.
	stored *domain.Credential
}

// check asks the oracle, caches the balance and persists it. The store
// derives the active flag from the row as it is at write time, so an operator
// toggle made during the oracle call is kept and reported back to every
// waiting caller.
func (m *Manager) check(ctx context.Context, id uuid.UUID, secret string) (checkResult, error) {
	balance, err := m.oracle.CheckCredits(ctx, secret)
	if err != nil {
		return checkResult{}, err
	}
	m.cache.Set(secret, balance)

	result := checkResult{balance: balance, checkedAt: m.now()}
	if id == uuid.Nil {
		return result, nil
	}
	stored, err := m.store.UpdateBalance(ctx, id, balance, result.checkedAt, store.ActivateWhenFunded)
	if err != nil {
		logger.FromContextOrDefault(ctx, m.logger).Warn("failed to persist refreshed balance",
			"credential_id", id,
			"error", err)
		return result, nil
	}
	result.stored = stored
	return result, nil
}
