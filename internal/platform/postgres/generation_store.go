package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/store"
)

const generationColumns = `id, task_id, credential_id, status, request, result_urls,
	enhancement_status, enhanced_result_urls, error_message, enhancement_error,
	created_at, updated_at, completed_at`

// PostgresGenerationStore implements the store.GenerationStore interface
// using a PostgreSQL database as the storage backend. The request and URL
// lists are stored as JSONB.
type PostgresGenerationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresGenerationStore creates a new PostgreSQL implementation of the GenerationStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresGenerationStore(db store.DBTX, logger *slog.Logger) *PostgresGenerationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresGenerationStore{
		db:     db,
		logger: logger.With(slog.String("component", "generation_store")),
	}
}

// Ensure PostgresGenerationStore implements store.GenerationStore interface
var _ store.GenerationStore = (*PostgresGenerationStore)(nil)

// encodeURLs stores nil as an empty array so the column never holds null.
func encodeURLs(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	return json.Marshal(urls)
}

func decodeURLs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, nil
	}
	return urls, nil
}

func scanGeneration(row rowScanner) (*domain.GenerationTask, error) {
	var (
		t                domain.GenerationTask
		taskID           sql.NullString
		credentialID     uuid.NullUUID
		status           string
		request          []byte
		resultURLs       []byte
		enhancement      string
		enhancedURLs     []byte
		errorMessage     sql.NullString
		enhancementError sql.NullString
		completedAt      sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&taskID,
		&credentialID,
		&status,
		&request,
		&resultURLs,
		&enhancement,
		&enhancedURLs,
		&errorMessage,
		&enhancementError,
		&t.CreatedAt,
		&t.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.GenerationStatus(status)
	t.EnhancementStatus = domain.EnhancementStatus(enhancement)
	if taskID.Valid {
		t.TaskID = &taskID.String
	}
	if credentialID.Valid {
		t.CredentialID = &credentialID.UUID
	}
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	if enhancementError.Valid {
		t.EnhancementError = &enhancementError.String
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		t.CompletedAt = &at
	}
	if err := json.Unmarshal(request, &t.Request); err != nil {
		return nil, fmt.Errorf("failed to decode generation request: %w", err)
	}
	if t.ResultURLs, err = decodeURLs(resultURLs); err != nil {
		return nil, fmt.Errorf("failed to decode result urls: %w", err)
	}
	if t.EnhancedResultURLs, err = decodeURLs(enhancedURLs); err != nil {
		return nil, fmt.Errorf("failed to decode enhanced result urls: %w", err)
	}
	return &t, nil
}

// Create implements store.GenerationStore.Create
func (s *PostgresGenerationStore) Create(ctx context.Context, t *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		log.Warn("generation validation failed during create",
			slog.String("error", err.Error()),
			slog.String("generation_id", t.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	request, err := json.Marshal(t.Request)
	if err != nil {
		return fmt.Errorf("failed to encode generation request: %w", err)
	}
	resultURLs, err := encodeURLs(t.ResultURLs)
	if err != nil {
		return fmt.Errorf("failed to encode result urls: %w", err)
	}
	enhancedURLs, err := encodeURLs(t.EnhancedResultURLs)
	if err != nil {
		return fmt.Errorf("failed to encode enhanced result urls: %w", err)
	}

	query := `
		INSERT INTO generation_tasks (` + generationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.TaskID,
		t.CredentialID,
		string(t.Status),
		request,
		resultURLs,
		string(t.EnhancementStatus),
		enhancedURLs,
		t.ErrorMessage,
		t.EnhancementError,
		t.CreatedAt,
		t.UpdatedAt,
		t.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", t.ID.String()))
		return MapError(err)
	}

	log.Debug("generation created",
		slog.String("generation_id", t.ID.String()),
		slog.String("status", string(t.Status)))
	return nil
}

// GetByID implements store.GenerationStore.GetByID
func (s *PostgresGenerationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	return s.get(ctx, `SELECT `+generationColumns+` FROM generation_tasks WHERE id = $1`, id)
}

// GetByTaskID implements store.GenerationStore.GetByTaskID
func (s *PostgresGenerationStore) GetByTaskID(ctx context.Context, taskID string) (*domain.GenerationTask, error) {
	return s.get(ctx, `SELECT `+generationColumns+` FROM generation_tasks WHERE task_id = $1`, taskID)
}

func (s *PostgresGenerationStore) get(ctx context.Context, query string, arg any) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	t, err := scanGeneration(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGenerationNotFound
		}
		log.Error("failed to get generation", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return t, nil
}

// Transition implements store.GenerationStore.Transition as a single
// conditional UPDATE, so two writers starting from the same status cannot
// both succeed.
func (s *PostgresGenerationStore) Transition(
	ctx context.Context,
	t *domain.GenerationTask,
	from domain.GenerationStatus,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	resultURLs, err := encodeURLs(t.ResultURLs)
	if err != nil {
		return fmt.Errorf("failed to encode result urls: %w", err)
	}
	enhancedURLs, err := encodeURLs(t.EnhancedResultURLs)
	if err != nil {
		return fmt.Errorf("failed to encode enhanced result urls: %w", err)
	}

	query := `
		UPDATE generation_tasks
		SET task_id = $1, status = $2, result_urls = $3, enhancement_status = $4,
			enhanced_result_urls = $5, error_message = $6, enhancement_error = $7,
			updated_at = $8, completed_at = $9
		WHERE id = $10 AND status = $11
	`
	result, err := s.db.ExecContext(ctx, query,
		t.TaskID,
		string(t.Status),
		resultURLs,
		string(t.EnhancementStatus),
		enhancedURLs,
		t.ErrorMessage,
		t.EnhancementError,
		t.UpdatedAt,
		t.CompletedAt,
		t.ID,
		string(from),
	)
	if err != nil {
		log.Error("failed to transition generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", t.ID.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		log.Debug("generation transitioned",
			slog.String("generation_id", t.ID.String()),
			slog.String("from", string(from)),
			slog.String("to", string(t.Status)))
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM generation_tasks WHERE id = $1)`, t.ID).Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrGenerationNotFound
	}
	return fmt.Errorf("%w: generation %s is no longer %s", store.ErrConflict, t.ID, from)
}

// FindByStatus implements store.GenerationStore.FindByStatus
func (s *PostgresGenerationStore) FindByStatus(
	ctx context.Context,
	status domain.GenerationStatus,
	limit int,
) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + generationColumns + ` FROM generation_tasks
		WHERE status = $1 ORDER BY created_at, id LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		log.Error("failed to find generations", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var tasks []*domain.GenerationTask
	for rows.Next() {
		t, err := scanGeneration(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}
