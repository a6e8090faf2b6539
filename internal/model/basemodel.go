package model

import "time"

// BaseModel is a catalog entry for a third-party hosted generative model.
// GenericName is the provider-side model identifier (e.g. "gpt-4o-mini");
// provider dispatch is derived from it.
type BaseModel struct {
	ID                 string    `json:"id" yaml:"id"`
	DisplayName        string    `json:"displayName" yaml:"displayName"`
	GenericName        string    `json:"genericName" yaml:"genericName"`
	Description        string    `json:"description" yaml:"description"`
	IsPro              bool      `json:"isPro" yaml:"isPro"`
	DefaultTemperature float64   `json:"defaultTemperature" yaml:"defaultTemperature"`
	DefaultTopP        float64   `json:"defaultTopP" yaml:"defaultTopP"`
	CreatedAt          time.Time `json:"createdAt" yaml:"-"`
}
