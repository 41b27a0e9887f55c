package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/genrelay/internal/api/shared"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

func newTestRouter(gen *GenerationHandler, creds *CredentialHandler) http.Handler {
	r := chi.NewRouter()
	if gen != nil {
		r.Post("/api/generations", gen.CreateGeneration)
		r.Get("/api/generations/{id}", gen.GetGeneration)
	}
	if creds != nil {
		r.Route("/api/admin/credentials", func(r chi.Router) {
			r.Get("/", creds.ListCredentials)
			r.Post("/", creds.CreateCredential)
			r.Post("/refresh", creds.RefreshCredentials)
			r.Get("/{id}", creds.GetCredential)
			r.Patch("/{id}", creds.UpdateCredential)
			r.Delete("/{id}", creds.DeleteCredential)
		})
	}
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	ctx := logger.WithLogger(shared.SetTraceID(req.Context()), logger.NopLogger())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}
