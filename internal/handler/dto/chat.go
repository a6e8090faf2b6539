package dto

// GenerateRequest is one prompt against a derived model.
type GenerateRequest struct {
	Prompt      string   `json:"prompt" validate:"required,max=16000"`
	ModelID     string   `json:"modelId" validate:"required,max=64"`
	ThreadID    string   `json:"threadId" validate:"omitempty,max=64"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"topP" validate:"omitempty,gte=0,lte=1"`
}

// UsageResponse is the number of prompts the caller sent today.
type UsageResponse struct {
	Count int64 `json:"count"`
}
