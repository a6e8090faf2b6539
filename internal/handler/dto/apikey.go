package dto

// CreateAPIKeyRequest mints a data API key.
type CreateAPIKeyRequest struct {
	Name   string   `json:"name" validate:"omitempty,max=100"`
	Scopes []string `json:"scopes" validate:"omitempty,max=4,dive,required"`
}
