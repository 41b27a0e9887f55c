package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/api"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/generation"
)

// apiError is an error response from the server.
type apiError struct {
	Status  int
	Message string
	TraceID string
}

func (e *apiError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("server returned %d: %s (trace %s)", e.Status, e.Message, e.TraceID)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// client calls the generation endpoints of a genrelay server.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, hc *http.Client) *client {
	return &client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Submit starts a generation.
func (c *client) Submit(ctx context.Context, req api.CreateGenerationRequest) (*api.SubmitGenerationResponse, error) {
	var resp api.SubmitGenerationResponse
	if err := c.do(ctx, http.MethodPost, "/api/generations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches one snapshot. Server errors in the 5xx range are reported
// as generation.ErrPollFailed so Await keeps polling through them.
func (c *client) Status(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	var resp api.GenerationResponse
	if err := c.do(ctx, http.MethodGet, "/api/generations/"+id.String(), nil, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w", generation.ErrPollFailed, err)
		}
		return nil, err
	}
	return toTask(resp), nil
}

func (c *client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp struct {
			Error   string `json:"error"`
			TraceID string `json:"trace_id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &apiError{Status: resp.StatusCode, Message: errResp.Error, TraceID: errResp.TraceID}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func toTask(r api.GenerationResponse) *domain.GenerationTask {
	return &domain.GenerationTask{
		ID:     r.ID,
		TaskID: r.TaskID,
		Status: domain.GenerationStatus(r.Status),
		Request: domain.GenerationRequest{
			Prompt:      r.Prompt,
			AspectRatio: r.AspectRatio,
			Model:       r.Model,
			ImageURL:    r.ImageURL,
		},
		ResultURLs:         r.ResultURLs,
		EnhancementStatus:  domain.EnhancementStatus(r.EnhancementStatus),
		EnhancedResultURLs: r.EnhancedResultURLs,
		ErrorMessage:       r.ErrorMessage,
		EnhancementError:   r.EnhancementError,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		CompletedAt:        r.CompletedAt,
	}
}
