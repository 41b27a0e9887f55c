package generation

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/genrelay/internal/domain"
)

// FetchFunc returns the latest snapshot of a task, typically by calling
// Service.Status or the HTTP status endpoint.
type FetchFunc func(ctx context.Context) (*domain.GenerationTask, error)

// Poller repeatedly fetches a task until it is terminal or a wall-clock limit
// passes. The limit is a client-side concern: reaching it never changes the
// stored task, which may still complete later.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithPollerClock replaces the time source and the wait between polls.
func WithPollerClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		p.now = now
		p.sleep = sleep
	}
}

// NewPoller creates a Poller polling every interval for at most timeout.
func NewPoller(interval, timeout time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Await polls until the task is terminal. Once the timeout has elapsed it
// returns the last snapshot and ErrPollTimeout. A poll that could not reach
// the provider (ErrPollFailed) is retried on the next tick; any other fetch
// error and context cancellation end polling immediately.
func (p *Poller) Await(ctx context.Context, fetch FetchFunc) (*domain.GenerationTask, error) {
	deadline := p.now().Add(p.timeout)
	var last *domain.GenerationTask

	for {
		task, err := fetch(ctx)
		if task != nil {
			last = task
		}
		switch {
		case err == nil:
			if task.IsTerminal() {
				return task, nil
			}
		case errors.Is(err, ErrPollFailed):
		default:
			return last, err
		}

		if !p.now().Before(deadline) {
			return last, ErrPollTimeout
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return last, err
		}
	}
}

// Await is shorthand for NewPoller(interval, timeout).Await(ctx, fetch).
func Await(
	ctx context.Context,
	fetch FetchFunc,
	interval, timeout time.Duration,
) (*domain.GenerationTask, error) {
	return NewPoller(interval, timeout).Await(ctx, fetch)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
