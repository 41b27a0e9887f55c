package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/genrelay/internal/api/shared"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/service"
)

// CredentialHandler handles the credential administration routes
type CredentialHandler struct {
	credentials service.CredentialService
	logger      *slog.Logger
}

// NewCredentialHandler creates a new CredentialHandler
func NewCredentialHandler(credentials service.CredentialService, logger *slog.Logger) *CredentialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{
		credentials: credentials,
		logger:      logger.With("component", "credential_handler"),
	}
}

// ListCredentials handles GET /api/admin/credentials
func (h *CredentialHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list credentials")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, credentialsToResponse(creds))
}

// GetCredential handles GET /api/admin/credentials/{id}
func (h *CredentialHandler) GetCredential(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	cred, err := h.credentials.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get credential")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, credentialToResponse(cred))
}

// CreateCredential handles POST /api/admin/credentials
func (h *CredentialHandler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cred, err := h.credentials.Create(r.Context(), req.Name, req.Secret)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create credential")
		return
	}

	subject, _ := shared.GetAdminSubject(r.Context())
	logger.FromContextOrDefault(r.Context(), h.logger).Info("credential created by admin",
		"credential_id", cred.ID,
		"admin", subject)

	shared.RespondWithJSON(w, r, http.StatusCreated, credentialToResponse(cred))
}

// UpdateCredential handles PATCH /api/admin/credentials/{id}
func (h *CredentialHandler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req UpdateCredentialRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cred, err := h.credentials.SetEnabled(r.Context(), id, *req.IsActive)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update credential")
		return
	}

	subject, _ := shared.GetAdminSubject(r.Context())
	logger.FromContextOrDefault(r.Context(), h.logger).Info("credential toggled by admin",
		"credential_id", cred.ID,
		"is_active", cred.IsActive,
		"admin", subject)

	shared.RespondWithJSON(w, r, http.StatusOK, credentialToResponse(cred))
}

// DeleteCredential handles DELETE /api/admin/credentials/{id}
func (h *CredentialHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.credentials.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete credential")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefreshCredentials handles POST /api/admin/credentials/refresh
func (h *CredentialHandler) RefreshCredentials(w http.ResponseWriter, r *http.Request) {
	report, err := h.credentials.Refresh(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to refresh credentials")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, refreshToResponse(report))
}
