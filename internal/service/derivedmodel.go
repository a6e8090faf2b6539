package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/platformx/platformx/internal/bus"
	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
	"github.com/platformx/platformx/internal/schema"
)

// DefaultUsageWindow is the range reported when a usage request names none.
const DefaultUsageWindow = 30 * 24 * time.Hour

// DerivedModelStore is the persistence DerivedModelService reads from.
type DerivedModelStore interface {
	ModelLookup
	GetBaseModelByID(ctx context.Context, id string) (*model.BaseModel, error)
	ListPublicDerivedModels(ctx context.Context, filter repository.DerivedModelFilter) ([]*model.DerivedModelDetails, int64, error)
	ListDerivedModelsByOwner(ctx context.Context, ownerID string) ([]*model.DerivedModelDetails, error)
	ListPublicCategories(ctx context.Context) ([]string, error)
	AddFavourite(ctx context.Context, fav *model.Favourite) error
	RemoveFavourite(ctx context.Context, userID, modelID string) error
	ListFavouriteModels(ctx context.Context, userID string) ([]*model.DerivedModelDetails, error)
}

// UsageReader reads the daily usage rollups.
type UsageReader interface {
	GetDailyUsage(ctx context.Context, modelID string, from, to time.Time) ([]*model.ModelUsageDaily, error)
}

// DerivedModelService handles building and browsing derived models.
type DerivedModelService struct {
	store     DerivedModelStore
	usage     UsageReader
	billing   SubscriptionChecker
	validator *schema.DatasetValidator
	bus       *bus.Bus
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewDerivedModelService creates a DerivedModelService.
func NewDerivedModelService(
	store DerivedModelStore,
	usage UsageReader,
	billing SubscriptionChecker,
	validator *schema.DatasetValidator,
	b *bus.Bus,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *DerivedModelService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &DerivedModelService{
		store:     store,
		usage:     usage,
		billing:   billing,
		validator: validator,
		bus:       b,
		metrics:   recorder,
		logger:    logger.With("component", "derived_models"),
		now:       time.Now,
	}
}

// CreateDerivedModelInput defines input for building a derived model.
type CreateDerivedModelInput struct {
	OwnerID         string
	DisplayName     string
	Description     string
	Category        string
	BaseModelID     string
	IsPublic        bool
	IsFineTuned     bool
	ResponseFormat  string
	TransactionHash string
	Dataset         json.RawMessage
}

// Create validates the upload and stores the model and dataset together.
func (s *DerivedModelService) Create(ctx context.Context, in CreateDerivedModelInput) (*model.DerivedModelDetails, error) {
	active, err := s.billing.IsActive(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrSubscriptionRequired
	}

	if !model.IsValidCategory(in.Category) {
		return nil, ErrInvalidCategory
	}

	base, err := s.store.GetBaseModelByID(ctx, in.BaseModelID)
	if err != nil {
		if errors.Is(err, repository.ErrBaseModelNotFound) {
			return nil, ErrBaseModelNotFound
		}
		return nil, err
	}

	records, err := s.validator.Validate(in.Dataset)
	if err != nil {
		return nil, err
	}

	format := in.ResponseFormat
	if format == "" {
		format = model.ResponseFormatText
	}

	now := s.now().UTC()
	dm := &model.DerivedModel{
		ID:              generateULID(),
		DisplayName:     in.DisplayName,
		Description:     in.Description,
		Category:        in.Category,
		BaseModelID:     base.ID,
		OwnerID:         in.OwnerID,
		IsFineTuned:     in.IsFineTuned,
		ResponseFormat:  format,
		IsPublic:        in.IsPublic,
		TransactionHash: in.TransactionHash,
		CreatedAt:       now,
	}
	ds := &model.Dataset{
		ID:             generateULID(),
		DerivedModelID: dm.ID,
		Data:           records,
		CreatedAt:      now,
	}

	if _, err := bus.Dispatch[CreateDerivedModelCommand, *model.DerivedModel](ctx, s.bus, CreateDerivedModelCommand{
		Model:   dm,
		Dataset: ds,
	}); err != nil {
		switch {
		case errors.Is(err, repository.ErrBaseModelNotFound):
			return nil, ErrBaseModelNotFound
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.metrics.IncDerivedModelCreated()
	s.logger.Info("derived model created",
		"model_id", dm.ID,
		"owner_id", dm.OwnerID,
		"base_model_id", base.ID,
		"records", len(records),
	)

	return &model.DerivedModelDetails{DerivedModel: *dm, BaseModel: *base}, nil
}

// ListInput narrows the public model listings.
type ListInput struct {
	Category string
	Search   string
	Offset   int
	Limit    int
}

// Page is one page of a listing with the total number of matches.
type Page[T any] struct {
	Data       []T   `json:"data"`
	TotalCount int64 `json:"totalCount"`
	Offset     int   `json:"offset"`
	Limit      int   `json:"limit"`
}

// List returns public derived models.
func (s *DerivedModelService) List(ctx context.Context, in ListInput) (*Page[*model.DerivedModelDetails], error) {
	if in.Category != "" && in.Category != model.FilterAll && !model.IsValidCategory(in.Category) {
		return nil, ErrInvalidCategory
	}

	offset, limit := repository.ListPage(in.Offset, in.Limit)
	models, total, err := s.store.ListPublicDerivedModels(ctx, repository.DerivedModelFilter{
		Category: in.Category,
		Search:   in.Search,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []*model.DerivedModelDetails{}
	}
	return &Page[*model.DerivedModelDetails]{Data: models, TotalCount: total, Offset: offset, Limit: limit}, nil
}

// Categories lists the categories that currently hold public models, prefixed with "All".
func (s *DerivedModelService) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.store.ListPublicCategories(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string{model.FilterAll}, cats...), nil
}

// MyBuilds lists the models a user built, private ones included.
func (s *DerivedModelService) MyBuilds(ctx context.Context, userID string) ([]*model.DerivedModelDetails, error) {
	models, err := s.store.ListDerivedModelsByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []*model.DerivedModelDetails{}
	}
	return models, nil
}

// Get returns a model visible to userID. Private models of other users are
// reported as missing.
func (s *DerivedModelService) Get(ctx context.Context, userID, id string) (*model.DerivedModelDetails, error) {
	details, err := s.store.GetDerivedModelDetails(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDerivedModelNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, err
	}
	if !details.VisibleTo(userID) {
		return nil, ErrModelNotFound
	}
	return details, nil
}

// Usage reports daily generation counts to the model's owner. Zero from or to
// default to the last DefaultUsageWindow.
func (s *DerivedModelService) Usage(ctx context.Context, userID, id string, from, to time.Time) (*model.UsageSummary, error) {
	details, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if details.OwnerID != userID {
		return nil, ErrForbidden
	}

	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-DefaultUsageWindow)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidInput)
	}

	daily, err := s.usage.GetDailyUsage(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	return repository.SummarizeUsage(id, from, to, daily), nil
}

// Favourites lists the user's bookmarked models.
func (s *DerivedModelService) Favourites(ctx context.Context, userID string) ([]*model.DerivedModelDetails, error) {
	models, err := s.store.ListFavouriteModels(ctx, userID)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []*model.DerivedModelDetails{}
	}
	return models, nil
}

// AddFavourite bookmarks a model the user can see.
func (s *DerivedModelService) AddFavourite(ctx context.Context, userID, modelID string) error {
	if _, err := s.Get(ctx, userID, modelID); err != nil {
		return err
	}

	err := s.store.AddFavourite(ctx, &model.Favourite{
		UserID:         userID,
		DerivedModelID: modelID,
		CreatedAt:      s.now().UTC(),
	})
	if errors.Is(err, repository.ErrDerivedModelNotFound) {
		return ErrModelNotFound
	}
	return err
}

// RemoveFavourite drops a bookmark.
func (s *DerivedModelService) RemoveFavourite(ctx context.Context, userID, modelID string) error {
	err := s.store.RemoveFavourite(ctx, userID, modelID)
	if errors.Is(err, repository.ErrFavouriteNotFound) {
		return ErrFavouriteNotFound
	}
	return err
}
