package model

import (
	"slices"
	"time"
)

// Categories is the fixed list of categories a derived model can be filed under.
var Categories = []string{
	"General",
	"Education",
	"Entertainment",
	"Healthcare",
	"Lifestyle",
	"Productivity",
	"Research",
	"Social Media",
	"Sports",
	"Travel",
	"Writing",
	"Others",
}

// IsValidCategory reports whether c is one of Categories.
func IsValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// Response formats a derived model can declare.
const (
	ResponseFormatText = "text"
	ResponseFormatJSON = "json"
)

// DerivedModel is a user-owned specialization of a base model paired with a dataset.
type DerivedModel struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	BaseModelID     string    `json:"baseModel"`
	OwnerID         string    `json:"modelOwner"`
	IsFineTuned     bool      `json:"isFineTuned"`
	ResponseFormat  string    `json:"responseFormat"`
	IsPublic        bool      `json:"isPublic"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DerivedModelDetails is a derived model joined with its base model and owner.
// It is what generation needs to pick a provider and build a system prompt.
type DerivedModelDetails struct {
	DerivedModel
	BaseModel BaseModel `json:"baseModelDetails"`
	OwnerName string    `json:"ownerName"`
}

// VisibleTo reports whether userID may read the model.
func (m *DerivedModel) VisibleTo(userID string) bool {
	return m.IsPublic || m.OwnerID == userID
}

// Dataset holds the arbitrary JSON records attached 1:1 to a derived model.
type Dataset struct {
	ID             string           `json:"id"`
	DerivedModelID string           `json:"derivedModel"`
	Data           []map[string]any `json:"data"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Favourite marks a derived model as bookmarked by a user.
type Favourite struct {
	UserID         string    `json:"userId"`
	DerivedModelID string    `json:"derivedModel"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ModelUsageDaily is the aggregated number of generations per model and day.
type ModelUsageDaily struct {
	DerivedModelID string    `json:"derivedModel"`
	Day            time.Time `json:"day"`
	Provider       string    `json:"provider"`
	Generations    int64     `json:"generations"`
}
