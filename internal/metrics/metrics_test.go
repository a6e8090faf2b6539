package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var (
	_ Recorder = (*NoopRecorder)(nil)
	_ Recorder = (*InMemoryRecorder)(nil)
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	rec := NewInMemory()
	rec.IncModelCacheHit()
	rec.IncModelCacheMiss()
	rec.IncModelCacheMiss()
	rec.IncGeneration("groq", "success")
	rec.IncGeneration("groq", "success")
	rec.IncGeneration("gemini", "forbidden")
	rec.IncUsageEventPublished("success")
	rec.IncUsageEventPublished("dropped")
	rec.IncUsageEventProcessed("dead_lettered")
	rec.SetUsageQueueDepth(7)

	snap := rec.Snapshot()
	if snap.ModelCacheHits != 1 || snap.ModelCacheMisses != 2 {
		t.Errorf("cache counters = %d/%d, want 1/2", snap.ModelCacheHits, snap.ModelCacheMisses)
	}
	if snap.Generations["groq/success"] != 2 {
		t.Errorf("groq/success = %d, want 2", snap.Generations["groq/success"])
	}
	if snap.Generations["gemini/forbidden"] != 1 {
		t.Errorf("gemini/forbidden = %d, want 1", snap.Generations["gemini/forbidden"])
	}
	if snap.UsagePublished != 1 || snap.UsageDropped != 1 {
		t.Errorf("usage published/dropped = %d/%d, want 1/1", snap.UsagePublished, snap.UsageDropped)
	}
	if snap.UsageDeadLettered != 1 {
		t.Errorf("UsageDeadLettered = %d, want 1", snap.UsageDeadLettered)
	}
	if snap.UsageQueueDepth != 7 {
		t.Errorf("UsageQueueDepth = %d, want 7", snap.UsageQueueDepth)
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	t.Parallel()

	rec := NewPrometheus()
	rec.IncGeneration("openai", "success")
	rec.ObserveGenerationDuration("openai", 250*time.Millisecond)
	rec.IncDerivedModelCreated()
	rec.SetUsageQueueDepth(3)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, want := range []string{
		`platformx_generations_total{provider="openai",status="success"} 1`,
		`platformx_derived_models_created_total 1`,
		`platformx_usage_queue_depth 3`,
		`platformx_generation_duration_seconds_count{provider="openai"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
