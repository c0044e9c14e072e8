// File: internal/metrics/prometheus.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the signal engine
type PrometheusMetrics struct {
	// Signal pipeline metrics
	SignalsGeneratedTotal   *prometheus.CounterVec
	SignalsPersistedTotal   *prometheus.CounterVec
	SignalsRejectedTotal    *prometheus.CounterVec
	ProcessorErrorsTotal    *prometheus.CounterVec
	BlocksProcessedTotal    prometheus.Counter
	BlockProcessingDuration prometheus.Histogram
	SignalStageDuration     *prometheus.HistogramVec

	// Persistence metrics
	PersistenceRetriesTotal  prometheus.Counter
	PersistenceFailuresTotal prometheus.Counter

	// Insight metrics
	InsightsGeneratedTotal *prometheus.CounterVec
	ProviderFailuresTotal  *prometheus.CounterVec
	ProviderDuration       *prometheus.HistogramVec
	StaleSignalsTotal      prometheus.Counter
	PollCyclesTotal        prometheus.Counter

	// Backfill metrics
	BackfillBlocksTotal prometheus.Counter

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
	LatestBlockHeight prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		SignalsGeneratedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_signals_generated_total",
				Help: "Total number of signal candidates generated",
			},
			[]string{"signal_type"},
		),

		SignalsPersistedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_signals_persisted_total",
				Help: "Total number of signals written to the store",
			},
			[]string{"signal_type"},
		),

		SignalsRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_signals_rejected_total",
				Help: "Total number of candidates rejected below the confidence floor",
			},
			[]string{"signal_type"},
		),

		ProcessorErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_processor_errors_total",
				Help: "Total number of isolated processor failures",
			},
			[]string{"signal_type"},
		),

		BlocksProcessedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_blocks_processed_total",
				Help: "Total number of blocks run through the pipeline",
			},
		),

		BlockProcessingDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signal_engine_block_processing_duration_seconds",
				Help:    "End-to-end time for one block's pipeline run",
				Buckets: prometheus.DefBuckets,
			},
		),

		SignalStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_engine_stage_duration_seconds",
				Help:    "Per-stage time inside one pipeline run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		PersistenceRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_persistence_retries_total",
				Help: "Total number of persistence retry attempts",
			},
		),

		PersistenceFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_persistence_failures_total",
				Help: "Total number of batches abandoned after retry exhaustion",
			},
		),

		InsightsGeneratedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_insights_generated_total",
				Help: "Total number of insights generated and persisted",
			},
			[]string{"category"},
		),

		ProviderFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_provider_failures_total",
				Help: "Total number of text-generation provider failures",
			},
			[]string{"provider", "reason"},
		),

		ProviderDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_engine_provider_duration_seconds",
				Help:    "Duration of text-generation provider calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		StaleSignalsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_stale_signals_total",
				Help: "Total number of stale-signal alerts emitted",
			},
		),

		PollCyclesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_poll_cycles_total",
				Help: "Total number of insight poll cycles",
			},
		),

		BackfillBlocksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_engine_backfill_blocks_total",
				Help: "Total number of blocks replayed by backfill",
			},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_engine_uptime_seconds",
				Help: "Time since the application started",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_engine_memory_usage_bytes",
				Help: "Current memory allocation",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_engine_goroutines",
				Help: "Current number of goroutines",
			},
		),

		LatestBlockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_engine_latest_block_height",
				Help: "Latest block height run through the pipeline",
			},
		),
	}
}

// RecordBlockProcessed records one completed pipeline run
func (m *PrometheusMetrics) RecordBlockProcessed(height uint64, duration time.Duration) {
	m.BlocksProcessedTotal.Inc()
	m.BlockProcessingDuration.Observe(duration.Seconds())
	m.LatestBlockHeight.Set(float64(height))
}

// RecordStageDuration records one pipeline stage's duration
func (m *PrometheusMetrics) RecordStageDuration(stage string, duration time.Duration) {
	m.SignalStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateMemoryUsage updates the memory gauge
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
