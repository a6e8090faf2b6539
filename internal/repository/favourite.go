package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/platformx/platformx/internal/model"
)

// ErrFavouriteNotFound is returned when removing a favourite that does not exist.
var ErrFavouriteNotFound = errors.New("favourite not found")

// AddFavourite bookmarks a model for a user. Adding twice is a no-op.
func (r *Repository) AddFavourite(ctx context.Context, fav *model.Favourite) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO favourites (user_id, derived_model_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, derived_model_id) DO NOTHING`,
		fav.UserID, fav.DerivedModelID, fav.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrDerivedModelNotFound
		}
		return fmt.Errorf("failed to add favourite: %w", err)
	}
	return nil
}

// RemoveFavourite deletes a bookmark.
func (r *Repository) RemoveFavourite(ctx context.Context, userID, modelID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM favourites WHERE user_id = $1 AND derived_model_id = $2`,
		userID, modelID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove favourite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFavouriteNotFound
	}
	return nil
}

// ListFavouriteModels returns the bookmarked models of a user that are still visible to them.
func (r *Repository) ListFavouriteModels(ctx context.Context, userID string) ([]*model.DerivedModelDetails, error) {
	return r.queryDerivedModelDetails(ctx,
		derivedModelDetailsSelect+`
		JOIN favourites f ON f.derived_model_id = dm.id
		WHERE f.user_id = $1 AND (dm.is_public OR dm.owner_id = $1)
		ORDER BY f.created_at DESC`,
		userID,
	)
}
