package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/redact"
)

// ErrEnhancementFailed wraps every failure of an enhancement run.
var ErrEnhancementFailed = errors.New("enhancement failed")

// Recorder stores the outcome of an enhancement on its generation task.
type Recorder interface {
	CompleteEnhancement(ctx context.Context, generationID uuid.UUID, urls []string) error
	FailEnhancement(ctx context.Context, generationID uuid.UUID, message string) error
}

// Transformer turns the file at in into an enhanced file at out.
type Transformer interface {
	Transform(ctx context.Context, in, out string) error
}

// ArtifactStore moves artifacts between remote URLs and local files.
type ArtifactStore interface {
	// Download fetches url into dir and returns the local path.
	Download(ctx context.Context, url, dir string) (string, error)
	// Publish makes the local file durable and returns its public URL.
	Publish(ctx context.Context, path string) (string, error)
}

// Pipeline runs enhancements.
type Pipeline struct {
	artifacts   ArtifactStore
	transformer Transformer
	recorder    Recorder
	workDir     string
	timeout     time.Duration
	logger      *slog.Logger
}

// PipelineConfig holds the tunables of a Pipeline.
type PipelineConfig struct {
	// WorkDir is the parent of per-run temp directories; empty uses os.TempDir.
	WorkDir string
	// Timeout bounds one run; zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	artifacts ArtifactStore,
	transformer Transformer,
	recorder Recorder,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		artifacts:   artifacts,
		transformer: transformer,
		recorder:    recorder,
		workDir:     cfg.WorkDir,
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "enhancement_pipeline"),
	}
}

// Enhance runs one enhancement for a generation and records the outcome.
// A failed run is recorded as a failed enhancement and the returned error
// wraps ErrEnhancementFailed.
func (p *Pipeline) Enhance(ctx context.Context, generationID uuid.UUID, sourceURL string) error {
	log := logger.FromContextOrDefault(ctx, p.logger).With("generation_id", generationID)
	started := time.Now()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	publicURL, runErr := p.run(runCtx, sourceURL)

	// The outcome is recorded even when the run was cut short by ctx.
	recordCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		log.Warn("enhancement failed",
			"error", redact.Error(runErr),
			"duration", time.Since(started))
		if err := p.recorder.FailEnhancement(recordCtx, generationID, redact.Error(runErr)); err != nil {
			log.Error("failed to record enhancement failure", "error", err)
			return errors.Join(runErr, err)
		}
		return runErr
	}

	if err := p.recorder.CompleteEnhancement(recordCtx, generationID, []string{publicURL}); err != nil {
		log.Error("failed to record enhancement result", "error", err)
		return fmt.Errorf("failed to record enhancement result: %w", err)
	}

	log.Info("enhancement completed",
		"url", publicURL,
		"duration", time.Since(started))
	return nil
}

func (p *Pipeline) run(ctx context.Context, sourceURL string) (string, error) {
	dir, err := os.MkdirTemp(p.workDir, "enhance-*")
	if err != nil {
		return "", fmt.Errorf("%w: creating work dir: %v", ErrEnhancementFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove enhancement work dir", "dir", dir, "error", err)
		}
	}()

	src, err := p.artifacts.Download(ctx, sourceURL, dir)
	if err != nil {
		return "", fmt.Errorf("%w: download: %v", ErrEnhancementFailed, err)
	}

	out := filepath.Join(dir, "enhanced"+filepath.Ext(src))
	if err := p.transformer.Transform(ctx, src, out); err != nil {
		return "", fmt.Errorf("%w: transform: %v", ErrEnhancementFailed, err)
	}

	publicURL, err := p.artifacts.Publish(ctx, out)
	if err != nil {
		return "", fmt.Errorf("%w: publish: %v", ErrEnhancementFailed, err)
	}
	return publicURL, nil
}
