package kie

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestCheckCredits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		want    int
		wantErr bool
	}{
		{"balance", http.StatusOK, `{"code":200,"msg":"success","data":120}`, 120, false},
		{"fractional balance truncates", http.StatusOK, `{"code":200,"msg":"success","data":7.9}`, 7, false},
		{"negative clamps to zero", http.StatusOK, `{"code":200,"data":-3}`, 0, false},
		{"bad key", http.StatusOK, `{"code":401,"msg":"invalid api key"}`, 0, true},
		{"server error html", http.StatusBadGateway, `<html>bad gateway</html>`, 0, true},
		{"malformed data", http.StatusOK, `{"code":200,"data":"lots"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, creditPath, r.URL.Path)
				assert.Equal(t, "Bearer secret-1", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			got, err := client.CheckCredits(context.Background(), "secret-1")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, provider.ErrOracleUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckCredits_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, time.Second).CheckCredits(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrOracleUnavailable))
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, generatePath, r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a cat surfing", body["prompt"])
			assert.Equal(t, "veo3", body["model"])
			assert.Equal(t, "9:16", body["aspectRatio"])
			assert.Equal(t, []any{"http://img/cat.png"}, body["imageUrls"])

			_, _ = io.WriteString(w, `{"code":200,"msg":"success","data":{"taskId":"veo_123"}}`)
		})

		taskID, err := client.Submit(context.Background(), provider.SubmitPayload{
			Prompt:      "a cat surfing",
			Model:       "veo3",
			AspectRatio: "9:16",
			ImageURL:    "http://img/cat.png",
		}, "secret")
		require.NoError(t, err)
		assert.Equal(t, "veo_123", taskID)
	})

	t.Run("text only omits image urls", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, ok := body["imageUrls"]
			assert.False(t, ok)
			_, _ = io.WriteString(w, `{"code":200,"data":{"taskId":"veo_9"}}`)
		})

		_, err := client.Submit(context.Background(), provider.SubmitPayload{Prompt: "p", Model: "veo3_fast"}, "s")
		require.NoError(t, err)
	})

	t.Run("provider rejection keeps message", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"code":402,"msg":"insufficient credits"}`)
		})

		_, err := client.Submit(context.Background(), provider.SubmitPayload{Prompt: "p", Model: "m"}, "s")
		require.Error(t, err)
		assert.True(t, errors.Is(err, provider.ErrRejected))
		assert.Equal(t, "insufficient credits", provider.RejectionMessage(err))
	})

	t.Run("missing task id", func(t *testing.T) {
		t.Parallel()
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"code":200,"data":{}}`)
		})

		_, err := client.Submit(context.Background(), provider.SubmitPayload{Prompt: "p", Model: "m"}, "s")
		assert.True(t, errors.Is(err, provider.ErrRejected))
	})
}

func TestPoll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  string
		state provider.PollState
		urls  []string
		msg   string
	}{
		{
			name:  "still running",
			data:  `{"taskId":"t","successFlag":0}`,
			state: provider.PollRunning,
		},
		{
			name:  "success with array",
			data:  `{"taskId":"t","successFlag":1,"response":{"resultUrls":["http://x/video.mp4"]}}`,
			state: provider.PollSucceeded,
			urls:  []string{"http://x/video.mp4"},
		},
		{
			name:  "success with json string",
			data:  `{"taskId":"t","successFlag":1,"response":{"resultUrls":"[\"http://x/a.mp4\",\"http://x/b.mp4\"]"}}`,
			state: provider.PollSucceeded,
			urls:  []string{"http://x/a.mp4", "http://x/b.mp4"},
		},
		{
			name:  "success without urls is a failure",
			data:  `{"taskId":"t","successFlag":1,"response":{}}`,
			state: provider.PollFailed,
			msg:   "provider reported success without result urls",
		},
		{
			name:  "failed with message",
			data:  `{"taskId":"t","successFlag":2,"errorMessage":"content policy violation"}`,
			state: provider.PollFailed,
			msg:   "content policy violation",
		},
		{
			name:  "generation failed without message",
			data:  `{"taskId":"t","successFlag":3}`,
			state: provider.PollFailed,
			msg:   "generation failed upstream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, recordPath, r.URL.Path)
				assert.Equal(t, "veo_1", r.URL.Query().Get("taskId"))
				_, _ = io.WriteString(w, `{"code":200,"msg":"success","data":`+tt.data+`}`)
			})

			res, err := client.Poll(context.Background(), "veo_1", "any-key")
			require.NoError(t, err)
			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, tt.urls, res.URLs)
			assert.Equal(t, tt.msg, res.Message)
		})
	}
}

func TestPoll_Rejected(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"code":404,"msg":"task not found"}`)
	})

	_, err := client.Poll(context.Background(), "missing", "k")
	assert.True(t, errors.Is(err, provider.ErrRejected))
}

func TestPoll_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		notErr  error
	}{
		{
			name:    "outage without envelope code",
			status:  http.StatusServiceUnavailable,
			body:    `{"error":"upstream busy"}`,
			wantErr: provider.ErrUnavailable,
			notErr:  provider.ErrRejected,
		},
		{
			name:    "outage with plain body",
			status:  http.StatusBadGateway,
			body:    `bad gateway`,
			wantErr: provider.ErrUnavailable,
			notErr:  provider.ErrRejected,
		},
		{
			name:    "throttled in envelope",
			status:  http.StatusOK,
			body:    `{"code":429,"msg":"rate limited"}`,
			wantErr: provider.ErrUnavailable,
			notErr:  provider.ErrRejected,
		},
		{
			name:    "server error in envelope",
			status:  http.StatusOK,
			body:    `{"code":500,"msg":"internal error"}`,
			wantErr: provider.ErrUnavailable,
			notErr:  provider.ErrRejected,
		},
		{
			name:    "invalid key",
			status:  http.StatusOK,
			body:    `{"code":401,"msg":"invalid api key"}`,
			wantErr: provider.ErrCredentialRejected,
			notErr:  provider.ErrRejected,
		},
		{
			name:    "forbidden over http",
			status:  http.StatusForbidden,
			body:    `{"msg":"forbidden"}`,
			wantErr: provider.ErrCredentialRejected,
			notErr:  provider.ErrRejected,
		},
		{
			name:    "unknown task",
			status:  http.StatusOK,
			body:    `{"code":404,"msg":"task not found"}`,
			wantErr: provider.ErrRejected,
			notErr:  provider.ErrUnavailable,
		},
		{
			name:    "invalid task id",
			status:  http.StatusBadRequest,
			body:    `{"code":422,"msg":"invalid taskId"}`,
			wantErr: provider.ErrRejected,
			notErr:  provider.ErrCredentialRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.Poll(context.Background(), "veo_1", "k")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, tt.notErr)
		})
	}
}

func TestPoll_RejectionKeepsProviderMessage(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"code":404,"msg":"task not found"}`)
	})

	_, err := client.Poll(context.Background(), "missing", "k")
	assert.Equal(t, "task not found", provider.RejectionMessage(err))
}
