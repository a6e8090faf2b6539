// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory for tests.
type Recorder interface {
	// Derived model cache metrics
	IncModelCacheHit()
	IncModelCacheMiss()

	// Generation metrics
	IncGeneration(provider, status string) // status: "success", "error", "forbidden"
	ObserveGenerationDuration(provider string, duration time.Duration)

	// Catalog metrics
	IncDerivedModelCreated()
	IncAPIKeyCreated()

	// Usage pipeline metrics
	IncUsageEventPublished(status string) // status: "success" or "dropped"
	IncUsageEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveUsageBatchSize(size int)
	ObserveUsageBatchDuration(duration time.Duration)
	SetUsageQueueDepth(depth int64)
	ObserveUsageIngestLag(lag time.Duration)
}
