package usage

import (
	"fmt"
	"slices"
)

const maxIDLength = 26

var knownProviders = []string{"gemini", "openai", "groq"}

// ValidateEventPayload checks a decoded stream payload before it is persisted.
func ValidateEventPayload(payload EventPayload) error {
	if payload.DerivedModelID == "" {
		return fmt.Errorf("derived model id is required")
	}
	if len(payload.DerivedModelID) > maxIDLength {
		return fmt.Errorf("derived model id too long")
	}
	if payload.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if len(payload.UserID) > maxIDLength {
		return fmt.Errorf("user id too long")
	}
	if !slices.Contains(knownProviders, payload.Provider) {
		return fmt.Errorf("unknown provider %q", payload.Provider)
	}
	if payload.GeneratedAt <= 0 {
		return fmt.Errorf("generated_at must be set")
	}
	return nil
}
