package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// ChatCompletions talks to any OpenAI-compatible chat completions API.
// It serves both OpenAI and Groq.
type ChatCompletions struct {
	client openai.Client
	family Family
}

// NewOpenAI creates a client for OpenAI. An empty baseURL uses the SDK default.
func NewOpenAI(apiKey, baseURL string, opts ...option.RequestOption) Provider {
	if apiKey == "" {
		return Unconfigured{Family: FamilyOpenAI}
	}
	return newChatCompletions(FamilyOpenAI, apiKey, baseURL, opts...)
}

// NewGroq creates a client for Groq.
func NewGroq(apiKey, baseURL string, opts ...option.RequestOption) Provider {
	if apiKey == "" {
		return Unconfigured{Family: FamilyGroq}
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	return newChatCompletions(FamilyGroq, apiKey, baseURL, opts...)
}

func newChatCompletions(family Family, apiKey, baseURL string, opts ...option.RequestOption) *ChatCompletions {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)

	return &ChatCompletions{
		client: openai.NewClient(all...),
		family: family,
	}
}

// Generate implements Provider.
func (c *ChatCompletions) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    chatMessages(req),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.family, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", c.family, ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", c.family, ErrEmptyResponse)
	}
	return text, nil
}

// chatMessages lays out system prompt, prior turns, then the new prompt.
func chatMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(req.History))
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, entry := range req.History {
		messages = append(messages,
			openai.UserMessage(entry.Prompt),
			openai.AssistantMessage(entry.Response),
		)
	}
	return append(messages, openai.UserMessage(req.Prompt))
}
