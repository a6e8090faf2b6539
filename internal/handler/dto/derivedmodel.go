package dto

import "encoding/json"

// CreateDerivedModelRequest builds a derived model from a base model and a dataset.
type CreateDerivedModelRequest struct {
	DisplayName     string          `json:"displayName" validate:"required,max=120"`
	Description     string          `json:"description" validate:"required,max=2000"`
	Category        string          `json:"category" validate:"required"`
	BaseModel       string          `json:"baseModel" validate:"required,max=64"`
	IsPublic        *bool           `json:"isPublic" validate:"required"`
	IsFineTuned     bool            `json:"isFineTuned"`
	ResponseFormat  string          `json:"responseFormat" validate:"omitempty,oneof=text json"`
	TransactionHash string          `json:"transactionHash" validate:"omitempty,max=128"`
	Dataset         json.RawMessage `json:"dataset" validate:"required"`
}
