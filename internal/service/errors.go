// Package service provides business logic for the application.
package service

import (
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/platformx/platformx/internal/schema"
)

// Service errors.
var (
	ErrModelNotFound              = errors.New("model not found")
	ErrDatasetNotFound            = errors.New("dataset not found")
	ErrThreadNotFound             = errors.New("thread not found")
	ErrBaseModelNotFound          = errors.New("base model not found")
	ErrMarketplaceDatasetNotFound = errors.New("dataset not found")
	ErrUserNotFound               = errors.New("user not found")
	ErrFavouriteNotFound          = errors.New("favourite not found")
	ErrKeyNotFound                = errors.New("API key not found")

	ErrSubscriptionRequired = errors.New("an active subscription is required")
	ErrForbidden            = errors.New("forbidden")

	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidSortOption = errors.New("invalid sort option")
	ErrInvalidScope      = errors.New("invalid scope")
	ErrInvalidOTP        = errors.New("invalid or expired OTP")
	ErrInvalidSampling   = errors.New("temperature must be within 0..2 and topP within 0..1")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrInvalidDataset is returned when an uploaded dataset fails schema validation.
	ErrInvalidDataset = schema.ErrInvalidDataset
)

// generateULID returns a new sortable unique id.
func generateULID() string {
	return ulid.Make().String()
}
