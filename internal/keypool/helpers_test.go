package keypool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

// fakeOracle returns configured balances and counts calls per secret.
type fakeOracle struct {
	mu       sync.Mutex
	balances map[string]int
	failing  map[string]bool
	calls    map[string]int
}

func newFakeOracle(balances map[string]int) *fakeOracle {
	return &fakeOracle{
		balances: balances,
		failing:  make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (o *fakeOracle) CheckCredits(ctx context.Context, secret string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls[secret]++
	if o.failing[secret] {
		return 0, errors.Join(provider.ErrOracleUnavailable, errors.New("connection reset"))
	}
	return o.balances[secret], nil
}

func (o *fakeOracle) set(secret string, balance int) {
	o.mu.Lock()
	o.balances[secret] = balance
	o.mu.Unlock()
}

func (o *fakeOracle) fail(secret string, failing bool) {
	o.mu.Lock()
	o.failing[secret] = failing
	o.mu.Unlock()
}

func (o *fakeOracle) callCount(secret string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[secret]
}

func (o *fakeOracle) totalCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.calls {
		total += n
	}
	return total
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// makeCredentials creates active credentials named after their secrets with
// strictly increasing creation times, so store order is deterministic.
func makeCredentials(t *testing.T, secrets ...string) []*domain.Credential {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	creds := make([]*domain.Credential, 0, len(secrets))
	for i, secret := range secrets {
		c, err := domain.NewCredential(secret, secret)
		require.NoError(t, err)
		c.CreatedAt = base.Add(time.Duration(i) * time.Second)
		creds = append(creds, c)
	}
	return creds
}

// gatedOracle blocks every check until release is closed, so tests can act
// while a check is in flight. Like a real HTTP oracle it gives up when the
// caller's context ends.
type gatedOracle struct {
	balance int
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedOracle(balance int) *gatedOracle {
	return &gatedOracle{
		balance: balance,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (o *gatedOracle) CheckCredits(ctx context.Context, secret string) (int, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()

	select {
	case o.entered <- struct{}{}:
	default:
	}

	select {
	case <-o.release:
		return o.balance, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (o *gatedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// disable applies the administrative toggle directly to the store.
func disable(t *testing.T, s *memstore.CredentialStore, id uuid.UUID) {
	t.Helper()
	cred := s.Get(id)
	require.NotNil(t, cred)
	cred.SetEnabled(false)
	require.NoError(t, s.Update(context.Background(), cred))
}
