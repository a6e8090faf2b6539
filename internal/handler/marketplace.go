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

// MarketplaceService is the listing logic MarketplaceHandler serves.
type MarketplaceService interface {
	FiltersAndSortOptions(ctx context.Context) (*service.FiltersAndSortOptions, error)
	Listings(ctx context.Context, in service.ListingsInput) (*service.Page[*model.MarketplaceDataset], error)
	ViewDataset(ctx context.Context, id string) (*service.DatasetView, error)
	Content(ctx context.Context, id string) (*model.MarketplaceContent, error)
}

// MarketplaceHandler handles the dataset marketplace.
type MarketplaceHandler struct {
	svc    MarketplaceService
	logger *slog.Logger
}

// NewMarketplaceHandler creates a new MarketplaceHandler.
func NewMarketplaceHandler(svc MarketplaceService, logger *slog.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{svc: svc, logger: logger}
}

// FiltersAndSortOptions handles GET /api/v1/datamarketplace/filters-and-sort-options.
func (h *MarketplaceHandler) FiltersAndSortOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.svc.FiltersAndSortOptions(r.Context())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// Listings handles POST /api/v1/datamarketplace/listings.
func (h *MarketplaceHandler) Listings(w http.ResponseWriter, r *http.Request) {
	var req dto.ListingsRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	page, err := h.svc.Listings(r.Context(), service.ListingsInput{
		Search: req.SearchQuery,
		Filter: req.SelectedFilter,
		Sort:   req.SelectedSortOption,
		Offset: req.Offset,
		Limit:  req.Limit,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ViewDataset handles GET /api/v1/datamarketplace/viewdataset/{datasetId}.
func (h *MarketplaceHandler) ViewDataset(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ViewDataset(r.Context(), chi.URLParam(r, "datasetId"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DataAPI handles GET /api/v1/datamarketplace/dataapi/{datasetId}.
// It is mounted behind the API key guard only.
func (h *MarketplaceHandler) DataAPI(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.Content(r.Context(), chi.URLParam(r, "datasetId"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}
