package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/platformx/platformx/internal/cache"
	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
)

// ModelLookup resolves a derived model with its base model and owner.
// Implementations return repository.ErrDerivedModelNotFound for unknown ids.
type ModelLookup interface {
	GetDerivedModelDetails(ctx context.Context, id string) (*model.DerivedModelDetails, error)
}

// DatasetLookup resolves the dataset attached to a derived model.
// Implementations return repository.ErrDatasetNotFound when there is none.
type DatasetLookup interface {
	GetDatasetByModelID(ctx context.Context, modelID string) (*model.Dataset, error)
}

// SubscriptionChecker reports whether a user's subscription is active right now.
type SubscriptionChecker interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// CachedModelLookup is a read-through Redis cache in front of a ModelLookup.
// Unknown ids are cached negatively for a short time.
type CachedModelLookup struct {
	next    ModelLookup
	cache   *cache.Cache
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewCachedModelLookup wraps next with the derived model cache.
func NewCachedModelLookup(next ModelLookup, c *cache.Cache, recorder metrics.Recorder, logger *slog.Logger) *CachedModelLookup {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CachedModelLookup{
		next:    next,
		cache:   c,
		metrics: recorder,
		logger:  logger.With("component", "model_lookup"),
	}
}

// GetDerivedModelDetails implements ModelLookup.
func (l *CachedModelLookup) GetDerivedModelDetails(ctx context.Context, id string) (*model.DerivedModelDetails, error) {
	cached, err := l.cache.GetDerivedModel(ctx, id)
	if err == nil {
		l.metrics.IncModelCacheHit()
		return cached, nil
	}

	if errors.Is(err, cache.ErrCacheMiss) {
		l.metrics.IncModelCacheMiss()
		if negative, _ := l.cache.IsNegativelyCached(ctx, id); negative {
			return nil, repository.ErrDerivedModelNotFound
		}
	} else {
		// Redis trouble should not take generation down with it.
		l.logger.Warn("model cache read failed", "model_id", id, "error", err)
	}

	details, err := l.next.GetDerivedModelDetails(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDerivedModelNotFound) {
			_ = l.cache.SetNegativeCache(ctx, id)
		}
		return nil, err
	}

	if err := l.cache.SetDerivedModel(ctx, details); err != nil {
		l.logger.Warn("model cache write failed", "model_id", id, "error", err)
	}
	return details, nil
}
