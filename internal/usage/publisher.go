// Package usage captures generation events and rolls them up per model and day.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platformx/platformx/internal/metrics"
)

const (
	// StreamKey holds one entry per successful generation.
	StreamKey = "stream:generation_events"

	// DeadLetterStreamKey holds entries the worker could not count.
	DeadLetterStreamKey = "stream:generation_events:dlq"

	// MaxStreamLen trims the stream approximately once the worker falls this far behind.
	MaxStreamLen = 100000

	// PublishTimeout bounds each background publish.
	PublishTimeout = 100 * time.Millisecond

	// MaxInFlight caps concurrent background publishes. Further events are dropped.
	MaxInFlight = 256
)

// EventPayload is the compact JSON stored under the "payload" field of a stream entry.
type EventPayload struct {
	DerivedModelID string `json:"mid"`
	UserID         string `json:"uid"`
	Provider       string `json:"p"`
	GeneratedAt    int64  `json:"t"` // Unix milliseconds
}

// Publisher appends generation events to the usage stream.
type Publisher struct {
	rdb      *redis.Client
	log      *slog.Logger
	metrics  metrics.Recorder
	inflight chan struct{}
}

// NewPublisher creates a publisher on the given Redis client.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		rdb:      client,
		log:      logger.With("component", "usage.publisher"),
		metrics:  recorder,
		inflight: make(chan struct{}, MaxInFlight),
	}
}

// Publish validates the event and appends it, returning the stream entry ID.
// Invalid events are refused here rather than dead-lettered later.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	if err := ValidateEventPayload(event); err != nil {
		return "", fmt.Errorf("invalid generation event: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode generation event: %w", err)
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append generation event: %w", err)
	}
	return id, nil
}

// PublishAsync records a generation without delaying the chat response.
// Failures and saturation are logged and counted as dropped.
func (p *Publisher) PublishAsync(event EventPayload) {
	select {
	case p.inflight <- struct{}{}:
	default:
		p.drop(event, "too many publishes in flight")
		return
	}

	go func() {
		defer func() { <-p.inflight }()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		if _, err := p.Publish(ctx, event); err != nil {
			p.drop(event, err.Error())
			return
		}
		p.metrics.IncUsageEventPublished("success")
	}()
}

func (p *Publisher) drop(event EventPayload, why string) {
	p.log.Warn("generation event dropped",
		"derived_model_id", event.DerivedModelID,
		"provider", event.Provider,
		"reason", why,
	)
	p.metrics.IncUsageEventPublished("dropped")
}
