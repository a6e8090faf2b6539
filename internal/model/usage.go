package model

import "time"

// UsageEvent records one successful generation. EventID is the stream entry id
// and makes ingestion idempotent.
type UsageEvent struct {
	EventID        string
	DerivedModelID string
	UserID         string
	Provider       string
	GeneratedAt    time.Time
}

// UsageSummary is the generation count of a model over a date range.
type UsageSummary struct {
	DerivedModelID string             `json:"derivedModel"`
	From           time.Time          `json:"from"`
	To             time.Time          `json:"to"`
	Total          int64              `json:"total"`
	ByProvider     map[string]int64   `json:"byProvider"`
	Daily          []*ModelUsageDaily `json:"daily"`
}
