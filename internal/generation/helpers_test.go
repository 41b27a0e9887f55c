package generation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/phrazzld/genrelay/internal/config"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/events"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/store/memstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Submit(ctx context.Context, payload provider.SubmitPayload, secret string) (string, error) {
	args := m.Called(ctx, payload, secret)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Poll(ctx context.Context, taskID string, secret string) (provider.PollResult, error) {
	args := m.Called(ctx, taskID, secret)
	return args.Get(0).(provider.PollResult), args.Error(1)
}

type fakeSelector struct {
	mu        sync.Mutex
	cred      *domain.Credential
	pollCreds []*domain.Credential
	selectErr error
	consumed  map[string]int
}

func newFakeSelector(t *testing.T) *fakeSelector {
	t.Helper()
	submit, err := domain.NewCredential("submit", "submit-secret")
	require.NoError(t, err)
	poll, err := domain.NewCredential("poll", "poll-secret")
	require.NoError(t, err)
	return &fakeSelector{cred: submit, pollCreds: []*domain.Credential{poll}, consumed: make(map[string]int)}
}

func (f *fakeSelector) Select(ctx context.Context) (*domain.Credential, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.cred, nil
}

func (f *fakeSelector) PollCredentials(ctx context.Context) ([]*domain.Credential, error) {
	if len(f.pollCreds) == 0 {
		return nil, errors.New("no credentials")
	}
	return f.pollCreds, nil
}

func (f *fakeSelector) Consume(secret string, credits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed[secret] += credits
}

// addPollCredential appends a credential offered for status polls.
func (f *fakeSelector) addPollCredential(t *testing.T, secret string) {
	t.Helper()
	cred, err := domain.NewCredential(secret, secret)
	require.NoError(t, err)
	f.pollCreds = append(f.pollCreds, cred)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
	// onEmit runs after recording, outside the lock.
	onEmit func(ctx context.Context, event *events.TaskRequestEvent) error
}

func (e *recordingEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	e.mu.Lock()
	e.events = append(e.events, event)
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if e.onEmit != nil {
		return e.onEmit(ctx, event)
	}
	return nil
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func testModels() *ModelPolicies {
	return NewModelPolicies(config.GenerationConfig{
		PollIntervalSeconds: 5,
		DefaultModel:        config.ModelFast,
		Models: map[string]config.ModelConfig{
			config.ModelPremium: {Enhance: true, CreditCost: 400, PollTimeoutMinutes: 12},
			config.ModelFast:    {Enhance: false, CreditCost: 80, PollTimeoutMinutes: 8},
		},
	})
}

type serviceFixture struct {
	store    *memstore.GenerationStore
	keys     *fakeSelector
	provider *mockProvider
	emitter  *recordingEmitter
	svc      *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    memstore.NewGenerationStore(),
		keys:     newFakeSelector(t),
		provider: &mockProvider{},
		emitter:  &recordingEmitter{},
	}
	f.svc = NewService(f.store, f.keys, f.provider, testModels(), f.emitter, logger.NopLogger())
	t.Cleanup(func() { f.provider.AssertExpectations(t) })
	return f
}

// submitted stores a processing task for model with upstream id "up-1".
func (f *serviceFixture) submitted(t *testing.T, model string) *domain.GenerationTask {
	t.Helper()
	task, err := domain.NewGenerationTask(domain.GenerationRequest{
		Prompt: "a lighthouse at dusk",
		Model:  model,
	}, f.keys.cred.ID)
	require.NoError(t, err)
	require.NoError(t, task.MarkSubmitted("up-1"))
	f.store.Put(task)
	return task
}
