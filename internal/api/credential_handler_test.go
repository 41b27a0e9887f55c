package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/mocks"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCredentialRouter(t *testing.T) (*mocks.MockCredentialService, http.Handler) {
	t.Helper()
	svc := &mocks.MockCredentialService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return svc, newTestRouter(nil, NewCredentialHandler(svc, logger.NopLogger()))
}

func newCredential(t *testing.T, secret string) *domain.Credential {
	t.Helper()
	cred, err := domain.NewCredential("primary", secret)
	require.NoError(t, err)
	return cred
}

func TestListCredentials_MasksSecrets(t *testing.T) {
	t.Parallel()

	svc, router := newCredentialRouter(t)
	cred := newCredential(t, "sk-live-0123456789abcdef")
	svc.On("List", mock.Anything).Return([]*domain.Credential{cred}, nil)

	w := doRequest(t, router, http.MethodGet, "/api/admin/credentials", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[[]CredentialResponse](t, w)
	require.Len(t, resp, 1)
	assert.Equal(t, cred.ID, resp[0].ID)
	assert.NotContains(t, w.Body.String(), cred.Secret)
	assert.Contains(t, resp[0].Secret, "****")
}

func TestCreateCredential(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		t.Parallel()
		svc, router := newCredentialRouter(t)
		cred := newCredential(t, "sk-live-new-key-123456")
		svc.On("Create", mock.Anything, "backup", "sk-live-new-key-123456").Return(cred, nil)

		w := doRequest(t, router, http.MethodPost, "/api/admin/credentials",
			CreateCredentialRequest{Name: "backup", Secret: "sk-live-new-key-123456"})

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, cred.ID, decodeBody[CredentialResponse](t, w).ID)
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		svc, router := newCredentialRouter(t)
		svc.On("Create", mock.Anything, "", "sk-live-dup-key-123456").Return(nil, service.ErrCredentialExists)

		w := doRequest(t, router, http.MethodPost, "/api/admin/credentials",
			CreateCredentialRequest{Secret: "sk-live-dup-key-123456"})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Credential already exists", decodeError(t, w).Error)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Parallel()
		_, router := newCredentialRouter(t)

		w := doRequest(t, router, http.MethodPost, "/api/admin/credentials", CreateCredentialRequest{Name: "x"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid secret: required field", decodeError(t, w).Error)
	})
}

func TestUpdateCredential(t *testing.T) {
	t.Parallel()

	t.Run("disable", func(t *testing.T) {
		t.Parallel()
		svc, router := newCredentialRouter(t)
		cred := newCredential(t, "sk-live-0123456789abcdef")
		cred.SetEnabled(false)
		svc.On("SetEnabled", mock.Anything, cred.ID, false).Return(cred, nil)

		w := doRequest(t, router, http.MethodPatch, "/api/admin/credentials/"+cred.ID.String(),
			map[string]bool{"is_active": false})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[CredentialResponse](t, w)
		assert.False(t, resp.IsActive)
		assert.True(t, resp.ManuallyDisabled)
	})

	t.Run("missing flag", func(t *testing.T) {
		t.Parallel()
		_, router := newCredentialRouter(t)

		w := doRequest(t, router, http.MethodPatch, "/api/admin/credentials/"+uuid.NewString(), `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid is_active: required field", decodeError(t, w).Error)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		svc, router := newCredentialRouter(t)
		id := uuid.New()
		svc.On("SetEnabled", mock.Anything, id, true).Return(nil, service.ErrCredentialNotFound)

		w := doRequest(t, router, http.MethodPatch, "/api/admin/credentials/"+id.String(),
			map[string]bool{"is_active": true})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteCredential(t *testing.T) {
	t.Parallel()

	svc, router := newCredentialRouter(t)
	id := uuid.New()
	svc.On("Delete", mock.Anything, id).Return(nil)

	w := doRequest(t, router, http.MethodDelete, "/api/admin/credentials/"+id.String(), nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRefreshCredentials(t *testing.T) {
	t.Parallel()

	t.Run("report", func(t *testing.T) {
		t.Parallel()
		svc, router := newCredentialRouter(t)
		started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		svc.On("Refresh", mock.Anything).Return(&keypool.RefreshReport{
			Checked:     3,
			Updated:     2,
			Deactivated: 1,
			StartedAt:   started,
			Duration:    1500 * time.Millisecond,
		}, nil)

		w := doRequest(t, router, http.MethodPost, "/api/admin/credentials/refresh", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[RefreshResponse](t, w)
		assert.Equal(t, 3, resp.Checked)
		assert.Equal(t, 1, resp.Deactivated)
		assert.Equal(t, int64(1500), resp.DurationMS)
		assert.Empty(t, resp.Failures)
		assert.True(t, started.Equal(resp.StartedAt))
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		svc, router := newCredentialRouter(t)
		svc.On("Refresh", mock.Anything).Return(nil, service.ErrRefreshUnavailable)

		w := doRequest(t, router, http.MethodPost, "/api/admin/credentials/refresh", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
