package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "platformx"

// PrometheusRecorder exports Recorder events as Prometheus collectors.
// Each recorder owns its registry so tests can create several.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	modelCache         *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationLatency  *prometheus.HistogramVec
	derivedModels      prometheus.Counter
	apiKeys            prometheus.Counter
	usagePublished     *prometheus.CounterVec
	usageProcessed     *prometheus.CounterVec
	usageBatchSize     prometheus.Histogram
	usageBatchDuration prometheus.Histogram
	usageQueueDepth    prometheus.Gauge
	usageIngestLag     prometheus.Histogram
}

// NewPrometheus creates a recorder with Go runtime and process collectors registered.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		modelCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cache_requests_total",
			Help:      "Derived model cache lookups by result.",
		}, []string{"result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by provider and status.",
		}, []string{"provider", "status"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Upstream provider latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		derivedModels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_models_created_total",
			Help:      "Derived models created.",
		}),
		apiKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_created_total",
			Help:      "API keys created or rotated.",
		}),
		usagePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_published_total",
			Help:      "Usage events published to the stream.",
		}, []string{"status"}),
		usageProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_processed_total",
			Help:      "Usage events consumed by the worker.",
		}, []string{"status"}),
		usageBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_batch_size",
			Help:      "Events per processed usage batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		usageBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_batch_duration_seconds",
			Help:      "Time to persist a usage batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		usageQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usage_queue_depth",
			Help:      "Pending plus unread messages in the usage stream.",
		}),
		usageIngestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_ingest_lag_seconds",
			Help:      "Delay between generation and persistence of its usage event.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		p.modelCache,
		p.generations,
		p.generationLatency,
		p.derivedModels,
		p.apiKeys,
		p.usagePublished,
		p.usageProcessed,
		p.usageBatchSize,
		p.usageBatchDuration,
		p.usageQueueDepth,
		p.usageIngestLag,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) IncModelCacheHit()  { p.modelCache.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncModelCacheMiss() { p.modelCache.WithLabelValues("miss").Inc() }

func (p *PrometheusRecorder) IncGeneration(provider, status string) {
	p.generations.WithLabelValues(provider, status).Inc()
}

func (p *PrometheusRecorder) ObserveGenerationDuration(provider string, duration time.Duration) {
	p.generationLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncDerivedModelCreated() { p.derivedModels.Inc() }
func (p *PrometheusRecorder) IncAPIKeyCreated()       { p.apiKeys.Inc() }

func (p *PrometheusRecorder) IncUsageEventPublished(status string) {
	p.usagePublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncUsageEventProcessed(status string) {
	p.usageProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveUsageBatchSize(size int) {
	p.usageBatchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveUsageBatchDuration(duration time.Duration) {
	p.usageBatchDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetUsageQueueDepth(depth int64) {
	p.usageQueueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) ObserveUsageIngestLag(lag time.Duration) {
	p.usageIngestLag.Observe(lag.Seconds())
}
