package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/model"
)

// ConsumerGroup is the Redis consumer group shared by every rollup worker.
const ConsumerGroup = "usage_workers"

const (
	deadLetterMaxLen = 10000
	errorPause       = time.Second
)

// Repository stores generation events and maintains the per-model daily counts.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.UsageEvent) error
	UpdateDailyUsage(ctx context.Context, events []*model.UsageEvent) error
}

// WorkerConfig tunes how the rollup worker drains the generation stream.
// Zero fields fall back to DefaultWorkerConfig.
type WorkerConfig struct {
	ConsumerID string

	// BatchSize caps how many generation events are stored per round trip.
	BatchSize int
	// BlockTimeout is how long a read waits for new generations.
	BlockTimeout time.Duration

	// Attempts is how many times a batch is written before it is left pending.
	Attempts int
	// RetryBase doubles after each failed attempt.
	RetryBase time.Duration

	// ReclaimEvery is how often entries stuck with a dead consumer are taken over.
	// Negative disables reclaiming.
	ReclaimEvery time.Duration
	// ReclaimIdle is how long an entry must sit unacknowledged to be taken over.
	ReclaimIdle time.Duration

	// DepthEvery is how often the backlog gauge is refreshed. Negative disables it.
	DepthEvery time.Duration
}

// NewConsumerID names this process within the consumer group. Every start
// gets a distinct name.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "usage"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

// DefaultWorkerConfig returns the production tuning.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ConsumerID:   NewConsumerID(),
		BatchSize:    500,
		BlockTimeout: 5 * time.Second,
		Attempts:     3,
		RetryBase:    time.Second,
		ReclaimEvery: 10 * time.Second,
		ReclaimIdle:  30 * time.Second,
		DepthEvery:   5 * time.Second,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	d := DefaultWorkerConfig()
	if c.ConsumerID == "" {
		c.ConsumerID = d.ConsumerID
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.ReclaimEvery == 0 {
		c.ReclaimEvery = d.ReclaimEvery
	}
	if c.ReclaimIdle <= 0 {
		c.ReclaimIdle = d.ReclaimIdle
	}
	if c.DepthEvery == 0 {
		c.DepthEvery = d.DepthEvery
	}
	return c
}

// Worker drains generation events from the stream into usage_events and
// keeps model_usage_daily in step with them.
type Worker struct {
	rdb     *redis.Client
	repo    Repository
	log     *slog.Logger
	metrics metrics.Recorder
	cfg     WorkerConfig

	reclaimCursor string
	nextReclaim   time.Time
	nextDepth     time.Time

	mu      sync.Mutex
	stopRun context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a rollup worker. It does nothing until Run is called.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		rdb:           client,
		repo:          repo,
		log:           logger.With("component", "usage.worker", "consumer_id", cfg.ConsumerID),
		metrics:       recorder,
		cfg:           cfg,
		reclaimCursor: "0-0",
	}
}

// Run consumes generation events until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return errors.New("usage worker already running")
	}
	ctx, w.stopRun = context.WithCancel(ctx)
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()
	defer close(done)

	if err := w.ensureGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	w.log.Info("usage worker started", "batch_size", w.cfg.BatchSize)

	for ctx.Err() == nil {
		if err := w.step(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("usage round failed", "error", err)
			pause(ctx, errorPause)
		}
	}
	w.log.Info("usage worker stopped")
	return nil
}

// Shutdown stops Run and waits for it to return. It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	stop, done := w.stopRun, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}

	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.log.Warn("usage worker did not stop in time")
		return ctx.Err()
	}
}

func (w *Worker) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if groupAlreadyExists(err) {
		return nil
	}
	return err
}

// step handles one batch: fetch, decode, store, acknowledge.
// A batch that cannot be stored stays pending and is reclaimed later.
func (w *Worker) step(ctx context.Context) error {
	w.refreshDepth(ctx)

	entries, err := w.fetch(ctx)
	if err != nil || len(entries) == 0 {
		return err
	}

	events := make([]*model.UsageEvent, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
		event, rej := decodeEntry(entry)
		if rej != nil {
			w.deadLetter(ctx, entry, rej)
			continue
		}
		events = append(events, event)
	}

	if len(events) > 0 {
		if err := w.store(ctx, events); err != nil {
			for range events {
				w.metrics.IncUsageEventProcessed("failed")
			}
			return fmt.Errorf("store %d generation events: %w", len(events), err)
		}
	}

	if err := w.rdb.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("ack generation events: %w", err)
	}
	return nil
}

// fetch prefers entries abandoned by other consumers, then new ones.
func (w *Worker) fetch(ctx context.Context) ([]redis.XMessage, error) {
	if stale, err := w.reclaim(ctx); err != nil {
		w.log.Warn("reclaim of stale generation events failed", "error", err)
	} else if len(stale) > 0 {
		return stale, nil
	}

	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.BlockTimeout,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read generation stream: %w", err)
	case len(streams) == 0:
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) reclaim(ctx context.Context) ([]redis.XMessage, error) {
	now := time.Now()
	if w.cfg.ReclaimEvery < 0 || now.Before(w.nextReclaim) {
		return nil, nil
	}
	w.nextReclaim = now.Add(w.cfg.ReclaimEvery)

	entries, cursor, err := w.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		MinIdle:  w.cfg.ReclaimIdle,
		Start:    w.reclaimCursor,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if cursor != "" {
		w.reclaimCursor = cursor
	}
	return entries, nil
}

// refreshDepth publishes how many generations are waiting to be counted.
func (w *Worker) refreshDepth(ctx context.Context) {
	now := time.Now()
	if w.cfg.DepthEvery < 0 || now.Before(w.nextDepth) {
		return
	}
	w.nextDepth = now.Add(w.cfg.DepthEvery)

	groups, err := w.rdb.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.log.Warn("read usage backlog failed", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetUsageQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// rejection explains why a stream entry cannot be counted as a generation.
type rejection struct {
	reason string
	detail string
}

// decodeEntry turns a stream entry into a usage event. The stream entry ID
// becomes the event ID so redelivery never double counts a generation.
func decodeEntry(entry redis.XMessage) (*model.UsageEvent, *rejection) {
	raw, ok := entry.Values["payload"].(string)
	if !ok {
		return nil, &rejection{"invalid_format", "payload field missing or not a string"}
	}

	var payload EventPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &rejection{"unmarshal_error", err.Error()}
	}
	if err := ValidateEventPayload(payload); err != nil {
		return nil, &rejection{"validation_error", err.Error()}
	}

	return &model.UsageEvent{
		EventID:        entry.ID,
		DerivedModelID: payload.DerivedModelID,
		UserID:         payload.UserID,
		Provider:       payload.Provider,
		GeneratedAt:    time.UnixMilli(payload.GeneratedAt).UTC(),
	}, nil
}

func (w *Worker) deadLetter(ctx context.Context, entry redis.XMessage, rej *rejection) {
	w.log.Warn("generation event rejected",
		"message_id", entry.ID,
		"reason", rej.reason,
		"detail", rej.detail,
	)
	w.metrics.IncUsageEventProcessed("dead_lettered")

	raw, _ := entry.Values["payload"].(string)
	err := w.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]any{
			"original_id":      entry.ID,
			"original_stream":  StreamKey,
			"reason":           rej.reason,
			"detail":           rej.detail,
			"payload":          raw,
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.log.Error("write to dead-letter stream failed", "message_id", entry.ID, "error", err)
	}
}

// store writes the events and recounts the affected model days, retrying
// with exponential backoff.
func (w *Worker) store(ctx context.Context, events []*model.UsageEvent) error {
	var err error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		if err = w.writeBatch(ctx, events); err == nil {
			w.recordStored(events, time.Since(start))
			return nil
		}
		if attempt >= w.cfg.Attempts {
			return err
		}

		wait := w.cfg.RetryBase << (attempt - 1)
		w.log.Warn("storing generation events failed, retrying",
			"attempt", attempt,
			"retry_in", wait.String(),
			"error", err,
		)
		if !pause(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (w *Worker) writeBatch(ctx context.Context, events []*model.UsageEvent) error {
	if err := w.repo.BulkInsert(ctx, events); err != nil {
		return fmt.Errorf("insert usage events: %w", err)
	}
	if err := w.repo.UpdateDailyUsage(ctx, events); err != nil {
		return fmt.Errorf("update daily usage: %w", err)
	}
	return nil
}

func (w *Worker) recordStored(events []*model.UsageEvent, took time.Duration) {
	byProvider := make(map[string]int, len(knownProviders))
	models := make(map[string]struct{}, len(events))
	for _, e := range events {
		byProvider[e.Provider]++
		models[e.DerivedModelID] = struct{}{}
		w.metrics.IncUsageEventProcessed("success")
		w.metrics.ObserveUsageIngestLag(time.Since(e.GeneratedAt))
	}
	w.metrics.ObserveUsageBatchSize(len(events))
	w.metrics.ObserveUsageBatchDuration(took)

	w.log.Info("generation usage stored",
		"generations", len(events),
		"models", len(models),
		"by_provider", byProvider,
		"duration_ms", took.Milliseconds(),
	)
}

// pause sleeps for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func groupAlreadyExists(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
