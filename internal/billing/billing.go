// Package billing resolves whether a user currently holds an active subscription.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
)

// SubscriptionStore reads and writes subscription records.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
}

// Service answers subscription questions at request time. Status is never
// cached so an expiry takes effect on the next request.
type Service struct {
	store  SubscriptionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a billing service.
func NewService(store SubscriptionStore, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "billing"),
		now:    time.Now,
	}
}

// IsActive reports whether userID has a subscription that has not expired.
// A user without any record is simply inactive.
func (s *Service) IsActive(ctx context.Context, userID string) (bool, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load subscription: %w", err)
	}
	return sub.IsActive(s.now()), nil
}

// Grant starts or extends a subscription by d from now, or from the current
// expiry if that is later.
func (s *Service) Grant(ctx context.Context, userID, tier string, d time.Duration) (*model.Subscription, error) {
	now := s.now().UTC()
	start := now

	existing, err := s.store.GetSubscription(ctx, userID)
	switch {
	case err == nil:
		if existing.ExpiresAt.After(now) {
			start = existing.ExpiresAt
		}
	case errors.Is(err, repository.ErrSubscriptionNotFound):
	default:
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	sub := &model.Subscription{
		UserID:    userID,
		Tier:      tier,
		ExpiresAt: start.Add(d),
		CreatedAt: now,
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription granted",
		"user_id", userID,
		"tier", tier,
		"expires_at", sub.ExpiresAt,
	)
	return sub, nil
}
