package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ModelCacheHits       uint64
	ModelCacheMisses     uint64
	Generations          map[string]uint64 // keyed by "provider/status"
	DerivedModelsCreated uint64
	APIKeysCreated       uint64
	UsagePublished       uint64
	UsageDropped         uint64
	UsageProcessed       uint64
	UsageFailed          uint64
	UsageDeadLettered    uint64
	UsageBatchCount      uint64
	UsageQueueDepth      int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	modelCacheHits       uint64
	modelCacheMisses     uint64
	derivedModelsCreated uint64
	apiKeysCreated       uint64
	usagePublished       uint64
	usageDropped         uint64
	usageProcessed       uint64
	usageFailed          uint64
	usageDeadLettered    uint64
	usageBatchCount      uint64
	usageQueueDepth      int64

	mu          sync.Mutex
	generations map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{generations: make(map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	generations := make(map[string]uint64, len(m.generations))
	for k, v := range m.generations {
		generations[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		ModelCacheHits:       atomic.LoadUint64(&m.modelCacheHits),
		ModelCacheMisses:     atomic.LoadUint64(&m.modelCacheMisses),
		Generations:          generations,
		DerivedModelsCreated: atomic.LoadUint64(&m.derivedModelsCreated),
		APIKeysCreated:       atomic.LoadUint64(&m.apiKeysCreated),
		UsagePublished:       atomic.LoadUint64(&m.usagePublished),
		UsageDropped:         atomic.LoadUint64(&m.usageDropped),
		UsageProcessed:       atomic.LoadUint64(&m.usageProcessed),
		UsageFailed:          atomic.LoadUint64(&m.usageFailed),
		UsageDeadLettered:    atomic.LoadUint64(&m.usageDeadLettered),
		UsageBatchCount:      atomic.LoadUint64(&m.usageBatchCount),
		UsageQueueDepth:      atomic.LoadInt64(&m.usageQueueDepth),
	}
}

func (m *InMemoryRecorder) IncModelCacheHit()  { atomic.AddUint64(&m.modelCacheHits, 1) }
func (m *InMemoryRecorder) IncModelCacheMiss() { atomic.AddUint64(&m.modelCacheMisses, 1) }

// IncGeneration counts a generation attempt per provider and outcome.
func (m *InMemoryRecorder) IncGeneration(provider, status string) {
	m.mu.Lock()
	m.generations[provider+"/"+status]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveGenerationDuration(string, time.Duration) {}

func (m *InMemoryRecorder) IncDerivedModelCreated() { atomic.AddUint64(&m.derivedModelsCreated, 1) }
func (m *InMemoryRecorder) IncAPIKeyCreated()       { atomic.AddUint64(&m.apiKeysCreated, 1) }

// IncUsageEventPublished counts publish outcomes.
func (m *InMemoryRecorder) IncUsageEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.usagePublished, 1)
		return
	}
	atomic.AddUint64(&m.usageDropped, 1)
}

// IncUsageEventProcessed counts worker outcomes.
func (m *InMemoryRecorder) IncUsageEventProcessed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.usageProcessed, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.usageDeadLettered, 1)
	default:
		atomic.AddUint64(&m.usageFailed, 1)
	}
}

func (m *InMemoryRecorder) ObserveUsageBatchSize(int)               { atomic.AddUint64(&m.usageBatchCount, 1) }
func (m *InMemoryRecorder) ObserveUsageBatchDuration(time.Duration) {}
func (m *InMemoryRecorder) SetUsageQueueDepth(depth int64) {
	atomic.StoreInt64(&m.usageQueueDepth, depth)
}
func (m *InMemoryRecorder) ObserveUsageIngestLag(time.Duration) {}
