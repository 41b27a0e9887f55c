package keypool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/redact"
	"github.com/phrazzld/genrelay/internal/store"
)

// DefaultRefreshInterval is the delay between background refresh passes.
const DefaultRefreshInterval = 2 * time.Minute

// RefreshFailure describes one credential a pass could not check.
type RefreshFailure struct {
	CredentialID uuid.UUID `json:"credential_id"`
	Error        string    `json:"error"`
}

// RefreshReport summarizes one refresh pass.
type RefreshReport struct {
	Checked     int              `json:"checked"`
	Updated     int              `json:"updated"`
	Deactivated int              `json:"deactivated"`
	Failures    []RefreshFailure `json:"failures,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration"`
}

// Refresher re-checks every stored credential against the oracle on a fixed
// interval. The oracle result is authoritative: the balance and check time are
// written to the store and the cache entry is dropped so the next selection
// re-derives it. A pass only ever demotes: the write keeps the stored active
// flag unless the balance is zero, so it cannot re-activate a credential an
// operator disabled, even one toggled while the oracle call was in flight.
// An exhausted credential that was topped up comes back through the next
// selection, which re-checks it on the cache miss.
type Refresher struct {
	store    store.CredentialStore
	oracle   provider.CreditOracle
	cache    *CreditCache
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// passMu serializes passes between the ticker and RefreshAll callers.
	passMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithRefresherClock overrides the time stamped on checks.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// NewRefresher creates a Refresher. A non-positive interval selects
// DefaultRefreshInterval.
func NewRefresher(
	credentials store.CredentialStore,
	oracle provider.CreditOracle,
	cache *CreditCache,
	interval time.Duration,
	logger *slog.Logger,
	opts ...RefresherOption,
) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Refresher{
		store:    credentials,
		oracle:   oracle,
		cache:    cache,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "credit_refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs one pass immediately and then one per interval in a background
// goroutine until Stop is called or ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRefresherRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.run(runCtx)

	r.logger.Info("credit refresher started", "interval", r.interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("credit refresher stopped")
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("credit refresh pass panicked", "panic", fmt.Sprint(p))
		}
	}()

	if _, err := r.RefreshAll(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("credit refresh pass failed", "error", redact.Error(err))
	}
}

// RefreshAll runs one synchronous pass over every stored credential. A
// single credential's oracle or store failure is recorded in the report and
// the pass continues; only failing to list credentials aborts it.
func (r *Refresher) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	report := &RefreshReport{StartedAt: r.now().UTC()}

	creds, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	for _, cred := range creds {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		balance, err := r.oracle.CheckCredits(ctx, cred.Secret)
		if err != nil {
			// A transient failure must not demote a healthy credential.
			r.logger.Warn("credit check failed during refresh",
				"credential_id", cred.ID,
				"secret", redact.Secret(cred.Secret),
				"error", redact.Error(err))
			report.Failures = append(report.Failures, RefreshFailure{
				CredentialID: cred.ID,
				Error:        redact.Error(err),
			})
			continue
		}

		stored, err := r.store.UpdateBalance(ctx, cred.ID, balance, r.now(), store.DemoteOnly)
		if err != nil {
			r.logger.Error("failed to store refreshed balance",
				"credential_id", cred.ID,
				"error", redact.Error(err))
			report.Failures = append(report.Failures, RefreshFailure{
				CredentialID: cred.ID,
				Error:        redact.Error(err),
			})
			continue
		}

		r.cache.Invalidate(cred.Secret)
		report.Updated++
		if cred.IsActive && !stored.IsActive {
			report.Deactivated++
		}
	}

	report.Duration = r.now().Sub(report.StartedAt)
	r.logger.Info("credit refresh pass finished",
		"checked", report.Checked,
		"updated", report.Updated,
		"deactivated", report.Deactivated,
		"failed", len(report.Failures))

	return report, nil
}
