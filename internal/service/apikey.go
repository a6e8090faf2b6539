package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
)

// APIKeyStore is the persistence APIKeyService needs.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	RotateAPIKey(ctx context.Context, oldKeyID string, newKey *model.APIKey) (time.Time, error)
}

// AuthCacheInvalidator drops cached API key authentications of a user.
type AuthCacheInvalidator interface {
	InvalidateUserAuthContexts(ctx context.Context, userID string) error
}

// selfServiceScopes are the scopes users may grant their own keys.
// Admin keys are only minted by platformctl.
var selfServiceScopes = []string{model.ScopeDataRead}

// APIKeyService manages the caller's data API keys.
type APIKeyService struct {
	store   APIKeyStore
	billing SubscriptionChecker
	cache   AuthCacheInvalidator
	keyEnv  string
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewAPIKeyService creates an APIKeyService. keyEnv is "live" or "test".
func NewAPIKeyService(store APIKeyStore, billing SubscriptionChecker, cache AuthCacheInvalidator, keyEnv string, recorder metrics.Recorder, logger *slog.Logger) *APIKeyService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &APIKeyService{
		store:   store,
		billing: billing,
		cache:   cache,
		keyEnv:  keyEnv,
		metrics: recorder,
		logger:  logger.With("component", "api_keys"),
	}
}

// CreateAPIKeyInput defines input for creating a key.
type CreateAPIKeyInput struct {
	UserID string
	Name   string
	Scopes []string
}

// Create mints a key. Its tier is pro when the owner's subscription is active.
func (s *APIKeyService) Create(ctx context.Context, in CreateAPIKeyInput) (*model.APIKeyCreateResponse, error) {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{model.ScopeDataRead}
	}
	for _, scope := range scopes {
		if !containsString(selfServiceScopes, scope) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, scope)
		}
	}

	tier, err := s.tierFor(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	return MintAPIKey(ctx, s.store, s.keyEnv, in.UserID, in.Name, scopes, tier, s.metrics, s.logger)
}

// MintAPIKey generates, stores and returns a new key. platformctl uses it
// directly to bootstrap admin keys.
func MintAPIKey(ctx context.Context, store APIKeyStore, keyEnv, userID, name string, scopes []string, tier string, recorder metrics.Recorder, logger *slog.Logger) (*model.APIKeyCreateResponse, error) {
	generated, err := auth.GenerateAPIKey(keyEnv)
	if err != nil {
		return nil, fmt.Errorf("generate API key: %w", err)
	}

	key := &model.APIKey{
		ID:            generateULID(),
		UserID:        userID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: tier,
		Name:          name,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if recorder != nil {
		recorder.IncAPIKeyCreated()
	}
	logger.Info("API key created",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"user_id", key.UserID,
		"tier", key.RateLimitTier,
	)

	return createResponse(key, generated.Plaintext), nil
}

// List returns the caller's keys without secrets.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]model.APIKeyResponse, error) {
	keys, err := s.store.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.ToResponse())
	}
	return out, nil
}

// Revoke disables one of the caller's keys. Keys of other users and keys
// already revoked are reported as missing.
func (s *APIKeyService) Revoke(ctx context.Context, userID, keyID string) error {
	if _, err := s.ownedActiveKey(ctx, userID, keyID); err != nil {
		return err
	}

	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	s.invalidate(ctx, userID)

	s.logger.Info("API key revoked", "key_id", keyID, "user_id", userID)
	return nil
}

// Rotate replaces a key with a fresh one carrying the same name and scopes.
// The tier is re-evaluated against the current subscription.
func (s *APIKeyService) Rotate(ctx context.Context, userID, keyID string) (*model.APIKeyRotateResponse, error) {
	old, err := s.ownedActiveKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	tier, err := s.tierFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	generated, err := auth.GenerateAPIKey(s.keyEnv)
	if err != nil {
		return nil, fmt.Errorf("generate API key: %w", err)
	}
	newKey := &model.APIKey{
		ID:            generateULID(),
		UserID:        userID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        old.Scopes,
		RateLimitTier: tier,
		Name:          old.Name,
		CreatedAt:     time.Now().UTC(),
	}

	revokedAt, err := s.store.RotateAPIKey(ctx, old.ID, newKey)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	s.invalidate(ctx, userID)
	s.metrics.IncAPIKeyCreated()

	s.logger.Info("API key rotated",
		"old_key_id", old.ID,
		"new_key_id", newKey.ID,
		"user_id", userID,
	)

	return &model.APIKeyRotateResponse{
		OldKeyID:        old.ID,
		OldKeyRevokedAt: revokedAt,
		NewKey:          *createResponse(newKey, generated.Plaintext),
	}, nil
}

func (s *APIKeyService) ownedActiveKey(ctx context.Context, userID, keyID string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	// Other users' keys look missing to prevent enumeration.
	if key.UserID != userID || key.IsRevoked() {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func (s *APIKeyService) tierFor(ctx context.Context, userID string) (string, error) {
	active, err := s.billing.IsActive(ctx, userID)
	if err != nil {
		return "", err
	}
	if active {
		return model.TierPro, nil
	}
	return model.TierFree, nil
}

func (s *APIKeyService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUserAuthContexts(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate cached auth contexts", "user_id", userID, "error", err)
	}
}

func createResponse(key *model.APIKey, plaintext string) *model.APIKeyCreateResponse {
	return &model.APIKeyCreateResponse{
		ID:            key.ID,
		Key:           plaintext,
		Name:          key.Name,
		KeyPrefix:     key.KeyPrefix,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		CreatedAt:     key.CreatedAt,
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
