// Package kie is the HTTP client for the credit-metered video generation
// provider. It implements provider.CreditOracle and provider.GenerationProvider
// and is the only code that sees the provider's wire shapes.
package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	creditPath   = "/api/v1/chat/credit"
	generatePath = "/api/v1/veo/generate"
	recordPath   = "/api/v1/veo/record-info"

	codeOK = 200

	// maxBodyBytes caps how much of an upstream response is read.
	maxBodyBytes = 1 << 20
)

// successFlag values reported by record-info.
const (
	flagRunning        = 0
	flagSucceeded      = 1
	flagFailed         = 2
	flagGenerateFailed = 3
)

// Client talks to the provider's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ provider.CreditOracle       = (*Client)(nil)
	_ provider.GenerationProvider = (*Client)(nil)
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`

	// status is the HTTP status the envelope arrived with.
	status int
}

// CheckCredits returns the remaining credit balance for secret. Every failure
// is reported as provider.ErrOracleUnavailable.
func (c *Client) CheckCredits(ctx context.Context, secret string) (int, error) {
	env, err := c.do(ctx, http.MethodGet, creditPath, secret, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", provider.ErrOracleUnavailable, err)
	}
	if env.Code != codeOK {
		return 0, fmt.Errorf("%w: code %d: %s", provider.ErrOracleUnavailable, env.Code, env.Msg)
	}

	var balance float64
	if err := json.Unmarshal(env.Data, &balance); err != nil {
		return 0, fmt.Errorf("%w: malformed credit balance: %v", provider.ErrOracleUnavailable, err)
	}
	if balance < 0 {
		balance = 0
	}
	return int(balance), nil
}

// Submit starts a generation job and returns the provider's task id.
func (c *Client) Submit(ctx context.Context, payload provider.SubmitPayload, secret string) (string, error) {
	body, err := submitBody(payload)
	if err != nil {
		return "", fmt.Errorf("failed to build submit body: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, generatePath, secret, body)
	if err != nil {
		return "", err
	}
	if env.Code != codeOK {
		return "", provider.Rejected(env.Code, env.Msg)
	}

	taskID := gjson.GetBytes(env.Data, "taskId").String()
	if taskID == "" {
		return "", provider.Rejected(env.Code, "response did not include a task id")
	}

	logger.FromContext(ctx).Debug("generation submitted upstream",
		"task_id", taskID,
		"model", payload.Model)

	return taskID, nil
}

// Poll reads the status of a previously submitted job. It never consumes
// credit.
func (c *Client) Poll(ctx context.Context, taskID string, secret string) (provider.PollResult, error) {
	path := recordPath + "?taskId=" + url.QueryEscape(taskID)
	env, err := c.do(ctx, http.MethodGet, path, secret, nil)
	if err != nil {
		return provider.PollResult{}, err
	}
	if env.Code != codeOK {
		return provider.PollResult{}, pollError(env)
	}
	return parseRecord(env.Data), nil
}

// pollError classifies a non-OK poll answer. Only answers about the task
// itself are rejections; throttling, outages and refused credentials are not.
func pollError(env *envelope) error {
	code := env.Code
	if env.status >= http.StatusInternalServerError || env.status == http.StatusTooManyRequests {
		code = env.status
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: code %d: %s", provider.ErrCredentialRejected, code, env.Msg)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: code %d: %s", provider.ErrUnavailable, code, env.Msg)
	}
	return provider.Rejected(code, env.Msg)
}

func submitBody(p provider.SubmitPayload) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "prompt", p.Prompt); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "model", p.Model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "aspectRatio", p.AspectRatio); err != nil {
		return nil, err
	}
	if p.ImageURL != "" {
		if body, err = sjson.SetBytes(body, "imageUrls", []string{p.ImageURL}); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// parseRecord normalizes record-info data into a PollResult. The provider
// reports resultUrls either as a JSON array or as a string holding one.
func parseRecord(data []byte) provider.PollResult {
	record := gjson.ParseBytes(data)

	switch record.Get("successFlag").Int() {
	case flagSucceeded:
		urls := resultURLs(record.Get("response.resultUrls"))
		if len(urls) == 0 {
			return provider.Failed("provider reported success without result urls")
		}
		return provider.Succeeded(urls)
	case flagFailed, flagGenerateFailed:
		msg := record.Get("errorMessage").String()
		if msg == "" {
			msg = "generation failed upstream"
		}
		return provider.Failed(msg)
	default:
		return provider.Running()
	}
}

func resultURLs(v gjson.Result) []string {
	if v.Type == gjson.String {
		v = gjson.Parse(v.String())
	}
	if !v.IsArray() {
		return nil
	}

	var urls []string
	for _, item := range v.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

func (c *Client) do(ctx context.Context, method, path, secret string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d from %s", provider.ErrUnavailable, resp.StatusCode, path)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
		}
		return nil, fmt.Errorf("malformed response from %s: %w", path, err)
	}

	// Some errors come back with a non-200 status but a well-formed envelope.
	if env.Code == 0 {
		env.Code = resp.StatusCode
	}
	env.status = resp.StatusCode
	return &env, nil
}
