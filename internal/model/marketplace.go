package model

import (
	"slices"
	"time"
)

// MarketplaceDataset is the listing metadata of a dataset offered for sale.
type MarketplaceDataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Rating      float64   `json:"rating"`
	DataLength  int64     `json:"dataLength"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MarketplaceContent is the raw data behind a marketplace listing.
type MarketplaceContent struct {
	DatasetID string           `json:"datasetId"`
	Data      []map[string]any `json:"data"`
}

// SortOption is a selectable ordering for marketplace listings.
// Key is what clients send back; Column and Desc drive the query.
type SortOption struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Column string `json:"-"`
	Desc   bool   `json:"-"`
}

// FilterAll disables category filtering in listing queries.
const FilterAll = "All"

// SortOptions is the whitelist of marketplace orderings.
var SortOptions = []SortOption{
	{Key: "name", Label: "Name (A-Z)", Column: "name"},
	{Key: "newest", Label: "Newest", Column: "created_at", Desc: true},
	{Key: "rating", Label: "Top rated", Column: "rating", Desc: true},
	{Key: "size", Label: "Largest", Column: "data_length", Desc: true},
}

// DefaultSortOption is used when a listing request names no sort key.
const DefaultSortOption = "newest"

// FindSortOption looks up a sort option by key.
func FindSortOption(key string) (SortOption, bool) {
	idx := slices.IndexFunc(SortOptions, func(o SortOption) bool { return o.Key == key })
	if idx < 0 {
		return SortOption{}, false
	}
	return SortOptions[idx], true
}
