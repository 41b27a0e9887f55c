package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/genrelay/internal/api"
	"github.com/phrazzld/genrelay/internal/config"
	"github.com/phrazzld/genrelay/internal/events"
	"github.com/phrazzld/genrelay/internal/generation"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/platform/kie"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/service"
	"github.com/phrazzld/genrelay/internal/service/auth"
	"github.com/phrazzld/genrelay/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminSecret = "router-test-admin-secret-long-enough-123"

// fakeUpstream answers the three provider endpoints the server uses.
type fakeUpstream struct {
	submits atomic.Int32
	polls   atomic.Int32
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/v1/chat/credit":
		_, _ = io.WriteString(w, `{"code":200,"msg":"success","data":500}`)
	case "/api/v1/veo/generate":
		n := f.submits.Add(1)
		_, _ = fmt.Fprintf(w, `{"code":200,"msg":"success","data":{"taskId":"up-%d"}}`, n)
	case "/api/v1/veo/record-info":
		f.polls.Add(1)
		_, _ = io.WriteString(w,
			`{"code":200,"msg":"success","data":{"successFlag":1,"response":{"resultUrls":"[\"http://cdn/video.mp4\"]"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestApplication(t *testing.T, upstreamURL string) *application {
	t.Helper()
	l := logger.NopLogger()

	cfg := &config.Config{
		Auth: config.AuthConfig{AdminJWTSecret: testAdminSecret, TokenLifetimeMinutes: 60},
		Generation: config.GenerationConfig{
			PollIntervalSeconds: 5,
			DefaultModel:        config.ModelFast,
			Models: map[string]config.ModelConfig{
				config.ModelFast: {CreditCost: 80, PollTimeoutMinutes: 8},
			},
		},
		Enhance: config.EnhanceConfig{PublicDir: t.TempDir()},
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	require.NoError(t, err)

	creds := memstore.NewCredentialStore()
	upstream := kie.NewClient(upstreamURL, 5*time.Second)
	cache := keypool.NewCreditCache(time.Minute)
	refresher := keypool.NewRefresher(creds, upstream, cache, time.Hour, l)

	credentialService, err := service.NewCredentialService(creds, cache, l,
		service.WithOracle(upstream),
		service.WithRefresher(refresher))
	require.NoError(t, err)

	return &application{
		config:            cfg,
		logger:            l,
		credentialStore:   creds,
		upstream:          upstream,
		cache:             cache,
		refresher:         refresher,
		tokens:            tokens,
		credentialService: credentialService,
		generations: generation.NewService(
			memstore.NewGenerationStore(),
			keypool.NewManager(creds, cache, upstream, l),
			upstream,
			generation.NewModelPolicies(cfg.Generation),
			events.NewInMemoryEventEmitter(l),
			l,
		),
	}
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_GenerationLifecycle(t *testing.T) {
	upstream := &fakeUpstream{}
	upstreamSrv := httptest.NewServer(upstream)
	defer upstreamSrv.Close()

	app := newTestApplication(t, upstreamSrv.URL)
	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	// Without credentials the pool has no capacity.
	resp := doJSON(t, srv, http.MethodPost, "/api/generations", "", api.CreateGenerationRequest{Prompt: "a fox"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	token, _, err := app.tokens.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)

	resp = doJSON(t, srv, http.MethodPost, "/api/admin/credentials", token,
		api.CreateCredentialRequest{Name: "primary", Secret: "sk-live-router-test-0001"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.CredentialResponse](t, resp)
	assert.Equal(t, 500, created.CachedCredits)
	assert.True(t, created.IsActive)

	resp = doJSON(t, srv, http.MethodPost, "/api/generations", "", api.CreateGenerationRequest{Prompt: "a fox"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	submitted := decode[api.SubmitGenerationResponse](t, resp)
	assert.Equal(t, "up-1", submitted.TaskID)
	assert.Equal(t, "processing", submitted.Status)
	assert.Equal(t, 80, submitted.CreditsReserved)
	assert.Equal(t, 5, submitted.PollIntervalSeconds)
	assert.Equal(t, 480, submitted.PollTimeoutSeconds)

	resp = doJSON(t, srv, http.MethodGet, "/api/generations/"+submitted.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snapshot := decode[api.GenerationResponse](t, resp)
	assert.Equal(t, "completed", snapshot.Status)
	assert.Equal(t, []string{"http://cdn/video.mp4"}, snapshot.ResultURLs)
	assert.Equal(t, "none", snapshot.EnhancementStatus)

	// Terminal tasks are served from the store without another poll.
	polls := upstream.polls.Load()
	resp = doJSON(t, srv, http.MethodGet, "/api/generations/"+submitted.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, polls, upstream.polls.Load())
}

func TestRouter_AdminRoutesRequireToken(t *testing.T) {
	upstreamSrv := httptest.NewServer(&fakeUpstream{})
	defer upstreamSrv.Close()

	app := newTestApplication(t, upstreamSrv.URL)
	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodGet, "/api/admin/credentials", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/api/admin/credentials/refresh", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _, err := app.tokens.GenerateToken(context.Background(), "ops")
	require.NoError(t, err)
	resp = doJSON(t, srv, http.MethodPost, "/api/admin/credentials/refresh", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[api.RefreshResponse](t, resp)
	assert.Equal(t, 0, report.Checked)
}

func TestRouter_HealthAndMedia(t *testing.T) {
	upstreamSrv := httptest.NewServer(&fakeUpstream{})
	defer upstreamSrv.Close()

	app := newTestApplication(t, upstreamSrv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(app.config.Enhance.PublicDir, "clip.mp4"), []byte("video"), 0o600))

	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	resp = doJSON(t, srv, http.MethodGet, "/media/clip.mp4", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "video", string(body))
}
