package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/platformx/platformx/internal/handler/dto"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

// APIKeyService is the key management logic APIKeyHandler serves.
type APIKeyService interface {
	Create(ctx context.Context, in service.CreateAPIKeyInput) (*model.APIKeyCreateResponse, error)
	List(ctx context.Context, userID string) ([]model.APIKeyResponse, error)
	Revoke(ctx context.Context, userID, keyID string) error
	Rotate(ctx context.Context, userID, keyID string) (*model.APIKeyRotateResponse, error)
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	svc    APIKeyService
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc APIKeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/apikeys.
// The plaintext key is only ever returned here and by Rotate.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateAPIKeyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateAPIKeyInput{
		UserID: userID,
		Name:   req.Name,
		Scopes: req.Scopes,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/v1/apikeys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	keys, err := h.svc.List(r.Context(), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Revoke handles DELETE /api/v1/apikeys/{keyId}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Revoke(r.Context(), userID, chi.URLParam(r, "keyId")); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /api/v1/apikeys/{keyId}/rotate.
func (h *APIKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rotated, err := h.svc.Rotate(r.Context(), userID, chi.URLParam(r, "keyId"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rotated)
}
