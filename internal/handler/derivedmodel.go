package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/platformx/platformx/internal/handler/dto"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

// DerivedModelService is the derived model logic DerivedModelHandler serves.
type DerivedModelService interface {
	Create(ctx context.Context, in service.CreateDerivedModelInput) (*model.DerivedModelDetails, error)
	List(ctx context.Context, in service.ListInput) (*service.Page[*model.DerivedModelDetails], error)
	Categories(ctx context.Context) ([]string, error)
	MyBuilds(ctx context.Context, userID string) ([]*model.DerivedModelDetails, error)
	Get(ctx context.Context, userID, id string) (*model.DerivedModelDetails, error)
	Usage(ctx context.Context, userID, id string, from, to time.Time) (*model.UsageSummary, error)
	Favourites(ctx context.Context, userID string) ([]*model.DerivedModelDetails, error)
	AddFavourite(ctx context.Context, userID, modelID string) error
	RemoveFavourite(ctx context.Context, userID, modelID string) error
}

// DerivedModelHandler handles building, browsing and bookmarking derived models.
type DerivedModelHandler struct {
	svc    DerivedModelService
	logger *slog.Logger
}

// NewDerivedModelHandler creates a new DerivedModelHandler.
func NewDerivedModelHandler(svc DerivedModelService, logger *slog.Logger) *DerivedModelHandler {
	return &DerivedModelHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/derivedmodel/create.
func (h *DerivedModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateDerivedModelRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateDerivedModelInput{
		OwnerID:         userID,
		DisplayName:     req.DisplayName,
		Description:     req.Description,
		Category:        req.Category,
		BaseModelID:     req.BaseModel,
		IsPublic:        *req.IsPublic,
		IsFineTuned:     req.IsFineTuned,
		ResponseFormat:  req.ResponseFormat,
		TransactionHash: req.TransactionHash,
		Dataset:         req.Dataset,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/v1/derivedmodel/listings.
func (h *DerivedModelHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	query := r.URL.Query()
	page, err := h.svc.List(r.Context(), service.ListInput{
		Category: query.Get("category"),
		Search:   query.Get("search"),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Filters handles GET /api/v1/derivedmodel/filters.
func (h *DerivedModelHandler) Filters(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filters": cats})
}

// MyBuilds handles GET /api/v1/derivedmodel/mybuilds.
func (h *DerivedModelHandler) MyBuilds(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	models, err := h.svc.MyBuilds(r.Context(), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

// Get handles GET /api/v1/derivedmodel/{modelId}.
func (h *DerivedModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	details, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "modelId"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// Usage handles GET /api/v1/derivedmodel/{modelId}/usage.
// from and to accept YYYY-MM-DD or RFC 3339.
func (h *DerivedModelHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	summary, err := h.svc.Usage(r.Context(), userID, chi.URLParam(r, "modelId"), from, to)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Favourites handles GET /api/v1/favourites.
func (h *DerivedModelHandler) Favourites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	models, err := h.svc.Favourites(r.Context(), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

// AddFavourite handles POST /api/v1/favourites/{modelId}.
func (h *DerivedModelHandler) AddFavourite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.AddFavourite(r.Context(), userID, chi.URLParam(r, "modelId")); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavourite handles DELETE /api/v1/favourites/{modelId}.
func (h *DerivedModelHandler) RemoveFavourite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveFavourite(r.Context(), userID, chi.URLParam(r, "modelId")); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD or RFC 3339", service.ErrInvalidInput, name)
	}
	return t.UTC(), nil
}
