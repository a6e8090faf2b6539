package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
)

// BaseModelStore is the persistence BaseModelService needs.
type BaseModelStore interface {
	ListBaseModels(ctx context.Context) ([]*model.BaseModel, error)
	GetBaseModelByID(ctx context.Context, id string) (*model.BaseModel, error)
	UpsertBaseModels(ctx context.Context, models []*model.BaseModel) error
}

// BaseModelService exposes the catalog of upstream models.
type BaseModelService struct {
	store  BaseModelStore
	logger *slog.Logger
}

// NewBaseModelService creates a BaseModelService.
func NewBaseModelService(store BaseModelStore, logger *slog.Logger) *BaseModelService {
	return &BaseModelService{store: store, logger: logger.With("component", "base_models")}
}

// List returns the catalog.
func (s *BaseModelService) List(ctx context.Context) ([]*model.BaseModel, error) {
	models, err := s.store.ListBaseModels(ctx)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []*model.BaseModel{}
	}
	return models, nil
}

// Get returns one catalog entry.
func (s *BaseModelService) Get(ctx context.Context, id string) (*model.BaseModel, error) {
	bm, err := s.store.GetBaseModelByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBaseModelNotFound) {
			return nil, ErrBaseModelNotFound
		}
		return nil, err
	}
	return bm, nil
}

// Seed loads a YAML catalog and upserts every entry.
func (s *BaseModelService) Seed(ctx context.Context, r io.Reader) (int, error) {
	models, err := ParseBaseModelCatalog(r)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpsertBaseModels(ctx, models); err != nil {
		return 0, err
	}
	s.logger.Info("base model catalog seeded", "count", len(models))
	return len(models), nil
}

type baseModelCatalog struct {
	BaseModels []*model.BaseModel `yaml:"baseModels"`
}

// ParseBaseModelCatalog decodes and checks a catalog file.
func ParseBaseModelCatalog(r io.Reader) ([]*model.BaseModel, error) {
	var catalog baseModelCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.BaseModels))
	for i, bm := range catalog.BaseModels {
		switch {
		case bm.ID == "":
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidInput, i)
		case seen[bm.ID]:
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidInput, bm.ID)
		case bm.GenericName == "":
			return nil, fmt.Errorf("%w: %s has no genericName", ErrInvalidInput, bm.ID)
		case bm.DefaultTemperature < 0 || bm.DefaultTemperature > 2:
			return nil, fmt.Errorf("%w: %s defaultTemperature out of range", ErrInvalidInput, bm.ID)
		case bm.DefaultTopP < 0 || bm.DefaultTopP > 1:
			return nil, fmt.Errorf("%w: %s defaultTopP out of range", ErrInvalidInput, bm.ID)
		}
		if bm.DisplayName == "" {
			bm.DisplayName = bm.GenericName
		}
		seen[bm.ID] = true
	}
	return catalog.BaseModels, nil
}
