package dto

// ListingsRequest is one marketplace search.
type ListingsRequest struct {
	SearchQuery        string `json:"searchQuery" validate:"max=200"`
	SelectedFilter     string `json:"selectedFilter" validate:"max=100"`
	SelectedSortOption string `json:"selectedSortOption" validate:"max=32"`
	Offset             int    `json:"offset" validate:"gte=0"`
	Limit              int    `json:"limit" validate:"gte=0,lte=100"`
}
