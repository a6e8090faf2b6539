package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/platformx/platformx/internal/model"
)

// BaseModelCatalog is the catalog BaseModelHandler serves.
type BaseModelCatalog interface {
	List(ctx context.Context) ([]*model.BaseModel, error)
	Get(ctx context.Context, id string) (*model.BaseModel, error)
}

// BaseModelHandler exposes the base model catalog.
type BaseModelHandler struct {
	svc    BaseModelCatalog
	logger *slog.Logger
}

// NewBaseModelHandler creates a new BaseModelHandler.
func NewBaseModelHandler(svc BaseModelCatalog, logger *slog.Logger) *BaseModelHandler {
	return &BaseModelHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/basemodel.
func (h *BaseModelHandler) List(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.List(r.Context())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

// Get handles GET /api/v1/basemodel/{id}.
func (h *BaseModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	bm, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, bm)
}
