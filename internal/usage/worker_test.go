package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/model"
)

type fakeRepo struct {
	mu       sync.Mutex
	events   []*model.UsageEvent
	rollups  int
	err      error
	failures int // calls that fail before err stops applying; 0 means always
	calls    int
}

func (f *fakeRepo) BulkInsert(_ context.Context, events []*model.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeRepo) UpdateDailyUsage(context.Context, []*model.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollups++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T, repo Repository, cfg WorkerConfig) (*Worker, *redis.Client, *metrics.InMemoryRecorder) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if cfg.ConsumerID == "" {
		cfg.ConsumerID = "test-consumer"
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 10 * time.Millisecond
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Millisecond
	}
	if cfg.ReclaimEvery == 0 {
		cfg.ReclaimEvery = -1
	}
	if cfg.DepthEvery == 0 {
		cfg.DepthEvery = -1
	}

	rec := metrics.NewInMemory()
	w := NewWorker(client, repo, discardLogger(), rec, cfg)
	if err := w.ensureGroup(context.Background()); err != nil {
		t.Fatalf("ensureGroup: %v", err)
	}
	return w, client, rec
}

func publishGeneration(t *testing.T, client *redis.Client, provider string, at time.Time) {
	t.Helper()
	pub := NewPublisher(client, discardLogger(), nil)
	if _, err := pub.Publish(context.Background(), EventPayload{
		DerivedModelID: "01HZX0000000000000000MODEL",
		UserID:         "01HZX00000000000000000USER",
		Provider:       provider,
		GeneratedAt:    at.UnixMilli(),
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestWorker_StoresGenerationsAndDeadLettersPoison(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	w, client, rec := newTestWorker(t, repo, WorkerConfig{})

	generatedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	publishGeneration(t, client, "groq", generatedAt)

	poison := []map[string]any{
		{"payload": "not-json"},
		{"other": "field"},
		{"payload": `{"mid":"m","uid":"u","p":"mystery","t":1}`},
	}
	for _, values := range poison {
		if err := client.XAdd(ctx, &redis.XAddArgs{Stream: StreamKey, Values: values}).Err(); err != nil {
			t.Fatalf("XAdd poison: %v", err)
		}
	}

	if err := w.step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}

	if len(repo.events) != 1 {
		t.Fatalf("stored %d generations, want 1", len(repo.events))
	}
	got := repo.events[0]
	if got.Provider != "groq" || !got.GeneratedAt.Equal(generatedAt) {
		t.Errorf("unexpected event %+v", got)
	}
	if got.EventID == "" {
		t.Error("event id must be the stream entry id")
	}
	if repo.rollups != 1 {
		t.Errorf("rollups = %d, want 1", repo.rollups)
	}

	dlq, err := client.XRange(ctx, DeadLetterStreamKey, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange dlq: %v", err)
	}
	if len(dlq) != 3 {
		t.Fatalf("dead-lettered %d entries, want 3", len(dlq))
	}
	reasons := map[any]int{}
	for _, entry := range dlq {
		reasons[entry.Values["reason"]]++
	}
	if reasons["unmarshal_error"] != 1 || reasons["invalid_format"] != 1 || reasons["validation_error"] != 1 {
		t.Errorf("dead-letter reasons = %v", reasons)
	}

	pending, err := client.XPending(ctx, StreamKey, ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("pending = %d, want 0 after ack", pending.Count)
	}

	snap := rec.Snapshot()
	if snap.UsageProcessed != 1 || snap.UsageDeadLettered != 3 {
		t.Errorf("processed/dead-lettered = %d/%d, want 1/3", snap.UsageProcessed, snap.UsageDeadLettered)
	}
	if snap.UsageBatchCount != 1 {
		t.Errorf("UsageBatchCount = %d, want 1", snap.UsageBatchCount)
	}
}

func TestWorker_FailedBatchStaysPending(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{err: errors.New("database unavailable")}
	w, client, rec := newTestWorker(t, repo, WorkerConfig{})

	publishGeneration(t, client, "openai", time.Now())

	if err := w.step(ctx); err == nil {
		t.Fatal("expected error from failing repository")
	}

	pending, err := client.XPending(ctx, StreamKey, ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 1 {
		t.Errorf("pending = %d, want 1 so the generation is counted later", pending.Count)
	}
	if rec.Snapshot().UsageFailed != 1 {
		t.Errorf("UsageFailed = %d, want 1", rec.Snapshot().UsageFailed)
	}
	if repo.rollups != 0 {
		t.Errorf("rollups = %d, want 0 when the insert failed", repo.rollups)
	}
}

func TestWorker_RetriesTransientStoreFailure(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{err: errors.New("connection reset"), failures: 1}
	w, client, rec := newTestWorker(t, repo, WorkerConfig{Attempts: 3})

	publishGeneration(t, client, "gemini", time.Now())

	if err := w.step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("insert calls = %d, want 2", repo.calls)
	}
	if len(repo.events) != 1 || repo.rollups != 1 {
		t.Errorf("stored/rollups = %d/%d, want 1/1", len(repo.events), repo.rollups)
	}
	if snap := rec.Snapshot(); snap.UsageFailed != 0 || snap.UsageProcessed != 1 {
		t.Errorf("failed/processed = %d/%d, want 0/1", snap.UsageFailed, snap.UsageProcessed)
	}
}

func TestWorker_ReclaimsGenerationsFromDeadConsumer(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	w, client, _ := newTestWorker(t, repo, WorkerConfig{
		ReclaimEvery: time.Hour,
		ReclaimIdle:  time.Millisecond,
	})

	publishGeneration(t, client, "openai", time.Now())

	// Another consumer reads the entry and dies before acknowledging it.
	if err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: "crashed-consumer",
		Streams:  []string{StreamKey, ">"},
		Count:    10,
		Block:    -1,
	}).Err(); err != nil {
		t.Fatalf("XReadGroup: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := w.step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("stored %d generations, want the reclaimed one", len(repo.events))
	}

	pending, err := client.XPending(ctx, StreamKey, ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("pending = %d, want 0 after reclaim and ack", pending.Count)
	}
}

func TestWorker_EmptyStream(t *testing.T) {
	repo := &fakeRepo{}
	w, _, _ := newTestWorker(t, repo, WorkerConfig{})

	if err := w.step(context.Background()); err != nil {
		t.Fatalf("step on empty stream: %v", err)
	}
	if len(repo.events) != 0 {
		t.Errorf("stored %d generations, want 0", len(repo.events))
	}
}

func TestWorker_ShutdownBeforeRun(t *testing.T) {
	w := NewWorker(nil, &fakeRepo{}, discardLogger(), nil, WorkerConfig{ConsumerID: "c"})
	if err := w.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown before Run = %v, want nil", err)
	}
}

func TestWorker_RunStopsOnShutdown(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeRepo{}, WorkerConfig{})

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for !w.running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v, want nil after Shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run should be refused")
	}
}

func TestDecodeEntry(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		reason string
	}{
		{"valid", map[string]any{"payload": `{"mid":"m1","uid":"u1","p":"openai","t":1767225600000}`}, ""},
		{"missing payload", map[string]any{"other": "x"}, "invalid_format"},
		{"bad json", map[string]any{"payload": "{"}, "unmarshal_error"},
		{"unknown provider", map[string]any{"payload": `{"mid":"m1","uid":"u1","p":"claude","t":1}`}, "validation_error"},
		{"no timestamp", map[string]any{"payload": `{"mid":"m1","uid":"u1","p":"groq"}`}, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, rej := decodeEntry(redis.XMessage{ID: "1767225600000-0", Values: tt.values})
			if tt.reason != "" {
				if rej == nil || rej.reason != tt.reason {
					t.Fatalf("rejection = %+v, want reason %q", rej, tt.reason)
				}
				return
			}
			if rej != nil {
				t.Fatalf("unexpected rejection %+v", rej)
			}
			if event.EventID != "1767225600000-0" || event.Provider != "openai" {
				t.Errorf("event = %+v", event)
			}
			if want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC); !event.GeneratedAt.Equal(want) {
				t.Errorf("GeneratedAt = %v, want %v", event.GeneratedAt, want)
			}
		})
	}
}

func TestWorkerConfig_Defaults(t *testing.T) {
	cfg := WorkerConfig{BatchSize: 50, ReclaimEvery: -1}.withDefaults()
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.ReclaimEvery != -1 {
		t.Errorf("ReclaimEvery = %v, want disabled", cfg.ReclaimEvery)
	}
	if cfg.Attempts != 3 || cfg.ConsumerID == "" || cfg.DepthEvery != 5*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestGroupAlreadyExists(t *testing.T) {
	if !groupAlreadyExists(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("BUSYGROUP error should be recognised")
	}
	if groupAlreadyExists(errors.New("ERR something else")) {
		t.Error("unrelated error should not be recognised")
	}
	if groupAlreadyExists(nil) {
		t.Error("nil error should not be recognised")
	}
}
