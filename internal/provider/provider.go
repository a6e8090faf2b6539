// Package provider wraps the third-party text generation APIs behind one interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platformx/platformx/internal/model"
)

// Family identifies which upstream API serves a base model.
type Family string

const (
	FamilyGemini Family = "gemini"
	FamilyOpenAI Family = "openai"
	FamilyGroq   Family = "groq"
)

var (
	// ErrNotConfigured is returned when the provider has no API key.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrEmptyResponse is returned when the upstream answered without any text.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// Request is one generation call.
type Request struct {
	Model        string
	Temperature  float64
	TopP         float64
	History      []*model.ThreadEntry
	Prompt       string
	SystemPrompt string
}

// Provider generates a completion for a request.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Select picks the family for a base model's generic name.
//
// Matching is a case-sensitive substring test checked in order: "gemini",
// then "gpt". Every other name, including unknown ones, goes to Groq, and a
// name containing both substrings goes to Gemini.
func Select(genericName string) Family {
	switch {
	case strings.Contains(genericName, "gemini"):
		return FamilyGemini
	case strings.Contains(genericName, "gpt"):
		return FamilyOpenAI
	default:
		return FamilyGroq
	}
}

// Set holds one Provider per family.
type Set struct {
	Gemini Provider
	OpenAI Provider
	Groq   Provider
}

// For returns the provider serving family.
func (s Set) For(family Family) (Provider, error) {
	var p Provider
	switch family {
	case FamilyGemini:
		p = s.Gemini
	case FamilyOpenAI:
		p = s.OpenAI
	case FamilyGroq:
		p = s.Groq
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, family)
	}
	return p, nil
}

// Unconfigured is a Provider that always fails with ErrNotConfigured.
type Unconfigured struct {
	Family Family
}

// Generate implements Provider.
func (u Unconfigured) Generate(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNotConfigured, u.Family)
}
