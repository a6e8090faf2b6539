package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/platformx/platformx/internal/bus"
	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/provider"
	"github.com/platformx/platformx/internal/repository"
	"github.com/platformx/platformx/internal/usage"
)

const systemPromptTemplate = `This is a dataset, users will ask questions based on this dataset. ` +
	`You are a helpful assistant that answers strictly from it. ` +
	`If you don't know the answer, please say 'I don't know'. Do not make up an answer. ` +
	`The details of the dataset is below: %s. ` +
	`The data schema looks like this: %s`

// ThreadReader reads conversation history.
type ThreadReader interface {
	ListThreadEntries(ctx context.Context, userID, threadID string) ([]*model.ThreadEntry, error)
	ListThreadSummaries(ctx context.Context, userID string, limit int) ([]*model.ThreadSummary, error)
}

// UsagePublisher records successful generations off the request path.
type UsagePublisher interface {
	PublishAsync(event usage.EventPayload)
}

// ChatService answers prompts against a derived model's dataset.
type ChatService struct {
	models    ModelLookup
	datasets  DatasetLookup
	threads   ThreadReader
	billing   SubscriptionChecker
	providers provider.Set
	bus       *bus.Bus
	usage     UsagePublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// ChatDeps groups the collaborators of ChatService.
type ChatDeps struct {
	Models    ModelLookup
	Datasets  DatasetLookup
	Threads   ThreadReader
	Billing   SubscriptionChecker
	Providers provider.Set
	Bus       *bus.Bus
	Usage     UsagePublisher
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	Timeout   time.Duration
}

// NewChatService creates a ChatService.
func NewChatService(deps ChatDeps) *ChatService {
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		models:    deps.Models,
		datasets:  deps.Datasets,
		threads:   deps.Threads,
		billing:   deps.Billing,
		providers: deps.Providers,
		bus:       deps.Bus,
		usage:     deps.Usage,
		metrics:   recorder,
		logger:    logger.With("component", "chat"),
		timeout:   deps.Timeout,
		now:       time.Now,
	}
}

// GenerateInput is one chat request.
type GenerateInput struct {
	UserID      string
	Prompt      string
	ModelID     string
	ThreadID    string
	Temperature *float64
	TopP        *float64
}

// GenerateOutput is the provider's answer and the thread it was filed under.
type GenerateOutput struct {
	Response string `json:"response"`
	ThreadID string `json:"threadId"`
}

// Generate answers a prompt with the derived model's base provider and
// records the exchange as one new thread entry.
func (s *ChatService) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return nil, ErrInvalidSampling
	}
	if in.TopP != nil && (*in.TopP < 0 || *in.TopP > 1) {
		return nil, ErrInvalidSampling
	}

	threadID := in.ThreadID
	var history []*model.ThreadEntry
	if threadID == "" {
		threadID = generateULID()
	} else {
		entries, err := s.threads.ListThreadEntries(ctx, in.UserID, threadID)
		if err != nil {
			return nil, fmt.Errorf("load thread: %w", err)
		}
		if len(entries) == 0 {
			return nil, ErrThreadNotFound
		}
		history = entries
	}

	details, err := s.models.GetDerivedModelDetails(ctx, in.ModelID)
	if err != nil {
		if errors.Is(err, repository.ErrDerivedModelNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	if !details.VisibleTo(in.UserID) {
		return nil, ErrModelNotFound
	}

	dataset, err := s.datasets.GetDatasetByModelID(ctx, details.ID)
	if err != nil {
		if errors.Is(err, repository.ErrDatasetNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	base := details.BaseModel
	family := provider.Select(base.GenericName)

	if base.IsPro {
		active, err := s.billing.IsActive(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if !active {
			s.metrics.IncGeneration(string(family), "forbidden")
			return nil, ErrSubscriptionRequired
		}
	}

	systemPrompt, err := buildSystemPrompt(details, dataset)
	if err != nil {
		return nil, err
	}

	if family == provider.FamilyGroq {
		s.logger.Debug("no provider matched generic name, using groq", "generic_name", base.GenericName)
	}
	s.logger.Info("dispatching generation",
		"model_id", details.ID,
		"generic_name", base.GenericName,
		"provider", family,
		"thread_id", threadID,
	)

	p, err := s.providers.For(family)
	if err != nil {
		return nil, err
	}

	req := provider.Request{
		Model:        base.GenericName,
		Temperature:  valueOr(in.Temperature, base.DefaultTemperature),
		TopP:         valueOr(in.TopP, base.DefaultTopP),
		History:      history,
		Prompt:       in.Prompt,
		SystemPrompt: systemPrompt,
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	response, err := p.Generate(callCtx, req)
	s.metrics.ObserveGenerationDuration(string(family), time.Since(start))
	if err != nil {
		s.metrics.IncGeneration(string(family), "error")
		return nil, err
	}
	s.metrics.IncGeneration(string(family), "success")

	if _, err := bus.Dispatch[CreateThreadCommand, *model.ThreadEntry](ctx, s.bus, CreateThreadCommand{
		UserID:   in.UserID,
		ThreadID: threadID,
		ModelID:  details.ID,
		Prompt:   in.Prompt,
		Response: response,
	}); err != nil {
		return nil, fmt.Errorf("save thread entry: %w", err)
	}

	if s.usage != nil {
		s.usage.PublishAsync(usage.EventPayload{
			DerivedModelID: details.ID,
			UserID:         in.UserID,
			Provider:       string(family),
			GeneratedAt:    s.now().UnixMilli(),
		})
	}

	return &GenerateOutput{Response: response, ThreadID: threadID}, nil
}

// Thread returns the entries of one of the user's threads.
func (s *ChatService) Thread(ctx context.Context, userID, threadID string) ([]*model.ThreadEntry, error) {
	entries, err := s.threads.ListThreadEntries(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrThreadNotFound
	}
	return entries, nil
}

// Threads lists the user's conversations, most recent first.
func (s *ChatService) Threads(ctx context.Context, userID string, limit int) ([]*model.ThreadSummary, error) {
	return s.threads.ListThreadSummaries(ctx, userID, limit)
}

// TodaysUsage counts the prompts the user sent today.
func (s *ChatService) TodaysUsage(ctx context.Context, userID string) (int64, error) {
	return bus.Dispatch[TodaysUsageQuery, int64](ctx, s.bus, TodaysUsageQuery{UserID: userID})
}

func buildSystemPrompt(details *model.DerivedModelDetails, dataset *model.Dataset) (string, error) {
	modelJSON, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encode model details: %w", err)
	}

	var first map[string]any
	if len(dataset.Data) > 0 {
		first = dataset.Data[0]
	}
	recordJSON, err := json.Marshal(first)
	if err != nil {
		return "", fmt.Errorf("encode dataset record: %w", err)
	}

	return fmt.Sprintf(systemPromptTemplate, modelJSON, recordJSON), nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
