package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncModelCacheHit()                                {}
func (n *NoopRecorder) IncModelCacheMiss()                               {}
func (n *NoopRecorder) IncGeneration(provider, status string)            {}
func (n *NoopRecorder) ObserveGenerationDuration(string, time.Duration)  {}
func (n *NoopRecorder) IncDerivedModelCreated()                          {}
func (n *NoopRecorder) IncAPIKeyCreated()                                {}
func (n *NoopRecorder) IncUsageEventPublished(status string)             {}
func (n *NoopRecorder) IncUsageEventProcessed(status string)             {}
func (n *NoopRecorder) ObserveUsageBatchSize(size int)                   {}
func (n *NoopRecorder) ObserveUsageBatchDuration(duration time.Duration) {}
func (n *NoopRecorder) SetUsageQueueDepth(depth int64)                   {}
func (n *NoopRecorder) ObserveUsageIngestLag(lag time.Duration)          {}
