// Package metrics provides Prometheus metrics for the scoring service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineMetrics collects and exposes scoring-related Prometheus metrics.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Scoring run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	FactorCount *prometheus.HistogramVec

	// Factor metrics
	FactorSignal *prometheus.HistogramVec
	FactorPoints *prometheus.HistogramVec
	BadInputs    *prometheus.CounterVec

	// Provider fetch metrics
	FetchesTotal *prometheus.CounterVec
	FetchLatency *prometheus.HistogramVec
	FetchErrors  *prometheus.CounterVec
	BreakerOpen  *prometheus.GaugeVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheErrors *prometheus.CounterVec

	// LLM metrics
	LLMCalls   *prometheus.CounterVec
	LLMLatency *prometheus.HistogramVec
	LLMErrors  *prometheus.CounterVec

	// Pick metrics
	PicksTotal  *prometheus.CounterVec
	PicksGraded *prometheus.CounterVec
	PickUnits   *prometheus.HistogramVec

	// Slate orchestrator metrics
	StageRuns    *prometheus.CounterVec
	StageLatency *prometheus.HistogramVec
	SlateGames   *prometheus.GaugeVec

	// Streaming metrics
	WSClients *prometheus.GaugeVec
	WSEvents  *prometheus.CounterVec
}

// New creates a metrics collector backed by its own registry.
func New() *EngineMetrics {
	registry := prometheus.NewRegistry()

	m := &EngineMetrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_runs_total",
				Help: "Total number of scoring runs",
			},
			[]string{"sport", "bet_type", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_run_duration_seconds",
				Help:    "End-to-end scoring run duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"bet_type"},
		),
		FactorCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_run_factor_count",
				Help:    "Number of factors applied per run",
				Buckets: prometheus.LinearBuckets(0, 2, 10),
			},
			[]string{"bet_type"},
		),

		FactorSignal: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_factor_signal",
				Help:    "Factor signal values (-1 to 1)",
				Buckets: prometheus.LinearBuckets(-1, 0.2, 11),
			},
			[]string{"factor"},
		),
		FactorPoints: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_factor_points",
				Help:    "Weighted factor point contributions",
				Buckets: prometheus.LinearBuckets(0, 0.5, 11),
			},
			[]string{"factor"},
		),
		BadInputs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_factor_bad_inputs_total",
				Help: "Factor computations neutralized by non-finite input",
			},
			[]string{"factor"},
		),

		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_provider_fetches_total",
				Help: "Total stats provider requests",
			},
			[]string{"endpoint", "status"},
		),
		FetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_provider_fetch_latency_seconds",
				Help:    "Stats provider request latency",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"endpoint"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_provider_fetch_errors_total",
				Help: "Stats provider request failures",
			},
			[]string{"endpoint"},
		),
		BreakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shiva_provider_breaker_open",
				Help: "Whether the provider circuit breaker is open (1=open)",
			},
			[]string{},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_cache_hits_total",
				Help: "Stats cache hits",
			},
			[]string{"kind"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_cache_misses_total",
				Help: "Stats cache misses",
			},
			[]string{"kind"},
		),
		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_cache_errors_total",
				Help: "Stats cache failures (degraded to direct fetch)",
			},
			[]string{"kind"},
		),

		LLMCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_llm_calls_total",
				Help: "LLM completion calls",
			},
			[]string{"provider", "status"},
		),
		LLMLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_llm_latency_seconds",
				Help:    "LLM completion latency",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
			},
			[]string{"provider"},
		),
		LLMErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_llm_errors_total",
				Help: "LLM call or parse failures",
			},
			[]string{"provider", "error_type"},
		),

		PicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_picks_total",
				Help: "Picks generated",
			},
			[]string{"bet_type", "side"},
		),
		PicksGraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_picks_graded_total",
				Help: "Picks graded by result",
			},
			[]string{"result"},
		),
		PickUnits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_pick_units",
				Help:    "Stake units per pick",
				Buckets: prometheus.LinearBuckets(0, 0.5, 8),
			},
			[]string{},
		),

		StageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_stage_runs_total",
				Help: "Slate orchestrator stage executions",
			},
			[]string{"stage", "status"},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiva_stage_latency_seconds",
				Help:    "Slate orchestrator stage latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"stage"},
		),
		SlateGames: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shiva_slate_games",
				Help: "Games on the current slate",
			},
			[]string{"status"},
		),

		WSClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shiva_ws_clients",
				Help: "Connected WebSocket clients",
			},
			[]string{},
		),
		WSEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiva_ws_events_total",
				Help: "Events broadcast to WebSocket clients",
			},
			[]string{"type"},
		),
	}

	m.registerAll()

	return m
}

func (m *EngineMetrics) registerAll() {
	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.FactorCount,
		m.FactorSignal,
		m.FactorPoints,
		m.BadInputs,
		m.FetchesTotal,
		m.FetchLatency,
		m.FetchErrors,
		m.BreakerOpen,
		m.CacheHits,
		m.CacheMisses,
		m.CacheErrors,
		m.LLMCalls,
		m.LLMLatency,
		m.LLMErrors,
		m.PicksTotal,
		m.PicksGraded,
		m.PickUnits,
		m.StageRuns,
		m.StageLatency,
		m.SlateGames,
		m.WSClients,
		m.WSEvents,
	)
}

// Registry returns the prometheus registry.
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving this registry.
func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// --- Helper methods for recording metrics ---

// RecordRun records a finished scoring run. All helpers are nil-safe so
// components can run without a collector wired in.
func (m *EngineMetrics) RecordRun(sport, betType, status string, durationSec float64, factors int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(sport, betType, status).Inc()
	if durationSec > 0 {
		m.RunDuration.WithLabelValues(betType).Observe(durationSec)
	}
	if factors >= 0 {
		m.FactorCount.WithLabelValues(betType).Observe(float64(factors))
	}
}

// RecordFactor records one factor computation.
func (m *EngineMetrics) RecordFactor(key string, signal, points float64, badInput bool) {
	if m == nil {
		return
	}
	m.FactorSignal.WithLabelValues(key).Observe(signal)
	m.FactorPoints.WithLabelValues(key).Observe(points)
	if badInput {
		m.BadInputs.WithLabelValues(key).Inc()
	}
}

// RecordFetch records a provider request.
func (m *EngineMetrics) RecordFetch(endpoint, status string, latencySec float64) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(endpoint, status).Inc()
	if latencySec > 0 {
		m.FetchLatency.WithLabelValues(endpoint).Observe(latencySec)
	}
	if status != "ok" {
		m.FetchErrors.WithLabelValues(endpoint).Inc()
	}
}

// SetBreakerOpen flags the provider circuit breaker state.
func (m *EngineMetrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues().Set(v)
}

// RecordCache records a cache lookup outcome: "hit", "miss", or "error".
func (m *EngineMetrics) RecordCache(kind, outcome string) {
	if m == nil {
		return
	}
	switch outcome {
	case "hit":
		m.CacheHits.WithLabelValues(kind).Inc()
	case "miss":
		m.CacheMisses.WithLabelValues(kind).Inc()
	default:
		m.CacheErrors.WithLabelValues(kind).Inc()
	}
}

// RecordLLM records an LLM completion attempt.
func (m *EngineMetrics) RecordLLM(provider, status string, latencySec float64) {
	if m == nil {
		return
	}
	m.LLMCalls.WithLabelValues(provider, status).Inc()
	if latencySec > 0 {
		m.LLMLatency.WithLabelValues(provider).Observe(latencySec)
	}
}

// RecordLLMError records an LLM failure by type.
func (m *EngineMetrics) RecordLLMError(provider, errorType string) {
	if m == nil {
		return
	}
	m.LLMErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordPick records a generated pick.
func (m *EngineMetrics) RecordPick(betType, side string, units float64) {
	if m == nil {
		return
	}
	m.PicksTotal.WithLabelValues(betType, side).Inc()
	m.PickUnits.WithLabelValues().Observe(units)
}

// RecordGrade records a graded pick result.
func (m *EngineMetrics) RecordGrade(result string) {
	if m == nil {
		return
	}
	m.PicksGraded.WithLabelValues(result).Inc()
}

// RecordStage records a slate orchestrator stage execution.
func (m *EngineMetrics) RecordStage(stage, status string, durationSec float64) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage, status).Inc()
	m.StageLatency.WithLabelValues(stage).Observe(durationSec)
}

// SetSlateGames updates the slate gauge for one status.
func (m *EngineMetrics) SetSlateGames(status string, count int) {
	if m == nil {
		return
	}
	m.SlateGames.WithLabelValues(status).Set(float64(count))
}

// SetWSClients updates the connected-clients gauge.
func (m *EngineMetrics) SetWSClients(count int) {
	if m == nil {
		return
	}
	m.WSClients.WithLabelValues().Set(float64(count))
}

// RecordWSEvent counts a broadcast event.
func (m *EngineMetrics) RecordWSEvent(eventType string) {
	if m == nil {
		return
	}
	m.WSEvents.WithLabelValues(eventType).Inc()
}

// Global instance for convenience
var defaultMetrics *EngineMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *EngineMetrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}
