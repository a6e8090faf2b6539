package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini calls Google's Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini client. An empty baseURL uses the SDK default.
func NewGemini(ctx context.Context, apiKey, baseURL string) (Provider, error) {
	if apiKey == "" {
		return Unconfigured{Family: FamilyGemini}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Generate implements Provider.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
		TopP:        genai.Ptr(float32(req.TopP)),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, geminiContents(req), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}

// geminiContents replays the thread as alternating user and model turns,
// ending with the new prompt.
func geminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, 1+2*len(req.History))
	for _, entry := range req.History {
		contents = append(contents,
			&genai.Content{Role: "user", Parts: []*genai.Part{{Text: entry.Prompt}}},
			&genai.Content{Role: "model", Parts: []*genai.Part{{Text: entry.Response}}},
		)
	}
	return append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	})
}
