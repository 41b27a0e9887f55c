package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/events"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/redact"
	"github.com/phrazzld/genrelay/internal/store"
	"github.com/samber/lo"
)

// recoverBatchSize bounds how many interrupted tasks Recover loads per query.
const recoverBatchSize = 100

// maxPollAttempts bounds how many credentials one status poll tries when the
// provider refuses them.
const maxPollAttempts = 3

// InterruptedEnhancementMessage is recorded on enhancements cut short by a
// process restart.
const InterruptedEnhancementMessage = "enhancement interrupted by service restart"

// CredentialSelector supplies credentials to the service.
type CredentialSelector interface {
	// Select returns a credential with credits for a new submission.
	Select(ctx context.Context) (*domain.Credential, error)
	// PollCredentials returns the known credentials for a free status poll,
	// preferred first.
	PollCredentials(ctx context.Context) ([]*domain.Credential, error)
	// Consume lowers the cached balance hint after a submission.
	Consume(secret string, credits int)
}

// SubmitResult is returned by Submit on success.
type SubmitResult struct {
	Task            *domain.GenerationTask
	CreditsReserved int
	PollInterval    time.Duration
	PollTimeout     time.Duration
}

// Service owns the lifecycle of generation tasks. All status changes go
// through the store's compare-and-set Transition so that concurrent pollers
// cannot apply the same edge twice.
type Service struct {
	tasks    store.GenerationStore
	keys     CredentialSelector
	provider provider.GenerationProvider
	models   *ModelPolicies
	policy   EnhancementPolicy
	emitter  events.EventEmitter
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithEnhancementPolicy replaces the model-based enhancement decision.
func WithEnhancementPolicy(policy EnhancementPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// NewService creates a Service. emitter receives enhancement requests; when
// it is nil, tasks that need enhancement have it failed immediately.
func NewService(
	tasks store.GenerationStore,
	keys CredentialSelector,
	generator provider.GenerationProvider,
	models *ModelPolicies,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		tasks:    tasks,
		keys:     keys,
		provider: generator,
		models:   models,
		policy:   models,
		emitter:  emitter,
		logger:   logger.With("component", "generation_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, reserves a credential and submits upstream.
//
// keypool.ErrNoCapacity is returned unchanged when no credential has credits.
// When the provider refuses the submission the task is stored as failed with
// the provider's message, and the returned error wraps ErrSubmitFailed and the
// provider error.
func (s *Service) Submit(ctx context.Context, req domain.GenerationRequest) (*SubmitResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	model, policy, err := s.models.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = model
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cred, err := s.keys.Select(ctx)
	if err != nil {
		return nil, err
	}

	task, err := domain.NewGenerationTask(req, cred.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save generation task: %w", err)
	}

	log = log.With("generation_id", task.ID, "model", model)

	upstreamID, submitErr := s.provider.Submit(ctx, provider.SubmitPayload{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Model:       req.Model,
		ImageURL:    req.ImageURL,
	}, cred.Secret)
	if submitErr != nil {
		log.Warn("provider refused generation", "error", redact.Error(submitErr))
		if err := task.MarkFailed(provider.RejectionMessage(submitErr)); err != nil {
			return nil, err
		}
		if err := s.tasks.Transition(ctx, task, domain.GenerationStatusPending); err != nil {
			log.Error("failed to record submission failure", "error", err)
		}
		return &SubmitResult{Task: task}, fmt.Errorf("%w: %w", ErrSubmitFailed, submitErr)
	}

	if err := task.MarkSubmitted(upstreamID); err != nil {
		return nil, err
	}
	if err := s.tasks.Transition(ctx, task, domain.GenerationStatusPending); err != nil {
		return nil, fmt.Errorf("failed to record submitted generation %s: %w", upstreamID, err)
	}

	s.keys.Consume(cred.Secret, policy.CreditCost)

	log.Info("generation submitted",
		"task_id", upstreamID,
		"credential_id", cred.ID,
		"credits_reserved", policy.CreditCost)

	return &SubmitResult{
		Task:            task,
		CreditsReserved: policy.CreditCost,
		PollInterval:    s.models.PollInterval(),
		PollTimeout:     policy.PollTimeout,
	}, nil
}

// Status returns the current snapshot of a task. A processing task is polled
// upstream once and any observed progress is applied before returning.
// Terminal tasks are returned as stored.
//
// Only a task-level answer from the provider fails the task. When the poll
// cannot get one (transport errors, throttling, outages, every credential
// refused) the unchanged snapshot is returned together with an error wrapping
// ErrPollFailed.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.GenerationStatusProcessing {
		return task, nil
	}

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		"generation_id", task.ID,
		"task_id", task.UpstreamID())

	creds, err := s.keys.PollCredentials(ctx)
	if err != nil {
		return task, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}

	var result provider.PollResult
	for i, cred := range lo.Slice(creds, 0, maxPollAttempts) {
		result, err = s.provider.Poll(ctx, task.UpstreamID(), cred.Secret)
		if !errors.Is(err, provider.ErrCredentialRejected) {
			break
		}
		log.Warn("poll credential refused",
			"credential_id", cred.ID,
			"attempt", i+1,
			"error", redact.Error(err))
	}

	switch {
	case errors.Is(err, provider.ErrRejected):
		result = provider.Failed(provider.RejectionMessage(err))
	case err != nil:
		log.Warn("status poll failed", "error", redact.Error(err))
		return task, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}

	return s.apply(ctx, task, result)
}

// apply moves a processing task according to a poll result.
func (s *Service) apply(
	ctx context.Context,
	task *domain.GenerationTask,
	result provider.PollResult,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("generation_id", task.ID)

	if result.State == provider.PollSucceeded && len(result.URLs) == 0 {
		result = provider.Failed("provider reported success without result urls")
	}

	var err error
	switch result.State {
	case provider.PollRunning:
		return task, nil
	case provider.PollSucceeded:
		if s.policy.NeedsEnhancement(task.Request.Model) {
			err = task.BeginEnhancement(result.URLs)
		} else {
			err = task.Complete(result.URLs)
		}
	case provider.PollFailed:
		err = task.MarkFailed(result.Message)
	default:
		return task, fmt.Errorf("unexpected poll state %v", result.State)
	}
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Transition(ctx, task, domain.GenerationStatusProcessing); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another poller already applied this result.
			return s.tasks.GetByID(ctx, task.ID)
		}
		return nil, fmt.Errorf("failed to record generation progress: %w", err)
	}

	log.Info("generation progressed",
		"status", task.Status,
		"enhancement_status", task.EnhancementStatus)

	if task.Status == domain.GenerationStatusEnhancing {
		s.requestEnhancement(ctx, task)
	}
	return task, nil
}

// requestEnhancement hands the first result to the enhancement workers. If the
// handoff is refused the enhancement is failed right away so the task still
// reaches completed.
func (s *Service) requestEnhancement(ctx context.Context, task *domain.GenerationTask) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("generation_id", task.ID)

	if s.emitter == nil {
		s.failEnhancementNow(ctx, task, "enhancement is not available")
		return
	}

	event, err := events.NewEnhancementEvent(task.ID, task.ResultURLs[0])
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Error("failed to schedule enhancement", "error", err)
		s.failEnhancementNow(ctx, task, "could not schedule enhancement: "+err.Error())
	}
}

func (s *Service) failEnhancementNow(ctx context.Context, task *domain.GenerationTask, reason string) {
	if err := task.FailEnhancement(reason); err != nil {
		return
	}
	if err := s.tasks.Transition(ctx, task, domain.GenerationStatusEnhancing); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to record enhancement failure",
			"generation_id", task.ID,
			"error", err)
	}
}

// CompleteEnhancement records enhanced artifacts for an enhancing task.
func (s *Service) CompleteEnhancement(ctx context.Context, id uuid.UUID, urls []string) error {
	return s.finishEnhancement(ctx, id, func(t *domain.GenerationTask) error {
		return t.FinishEnhancement(urls)
	})
}

// FailEnhancement records that enhancement of an enhancing task failed. The
// task still ends up completed with its original result.
func (s *Service) FailEnhancement(ctx context.Context, id uuid.UUID, message string) error {
	return s.finishEnhancement(ctx, id, func(t *domain.GenerationTask) error {
		return t.FailEnhancement(message)
	})
}

func (s *Service) finishEnhancement(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*domain.GenerationTask) error,
) error {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := mutate(task); err != nil {
		return err
	}
	if err := s.tasks.Transition(ctx, task, domain.GenerationStatusEnhancing); err != nil {
		return fmt.Errorf("failed to record enhancement outcome: %w", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("enhancement finished",
		"generation_id", task.ID,
		"enhancement_status", task.EnhancementStatus)
	return nil
}

// Recover closes enhancements left behind by a previous process. They are
// not retried: each is completed with a failed enhancement status. It
// returns the number of tasks closed.
func (s *Service) Recover(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	recovered := 0

	for {
		stuck, err := s.tasks.FindByStatus(ctx, domain.GenerationStatusEnhancing, recoverBatchSize)
		if err != nil {
			return recovered, fmt.Errorf("failed to find interrupted enhancements: %w", err)
		}
		if len(stuck) == 0 {
			break
		}

		progressed := 0
		for _, task := range stuck {
			if err := task.FailEnhancement(InterruptedEnhancementMessage); err != nil {
				continue
			}
			err := s.tasks.Transition(ctx, task, domain.GenerationStatusEnhancing)
			if err != nil && !errors.Is(err, store.ErrConflict) {
				log.Error("failed to close interrupted enhancement",
					"generation_id", task.ID,
					"error", err)
				continue
			}
			progressed++
			if err == nil {
				recovered++
			}
		}
		if progressed == 0 {
			break
		}
	}

	if recovered > 0 {
		log.Info("closed interrupted enhancements", "count", recovered)
	}
	return recovered, nil
}
