// Package metrics exposes Prometheus collectors for the API, the worker and the pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
)

const namespace = "appideas"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	modelCalls   *prometheus.CounterVec
	modelErrors  *prometheus.CounterVec
	modelTokens  *prometheus.CounterVec
	modelCost    *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	stages       *prometheus.CounterVec

	runs      *prometheus.CounterVec
	runCost   prometheus.Histogram
	cacheHits *prometheus.CounterVec
}

// New builds the collectors on a fresh registry, including process and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Completed model calls.",
		}, []string{"stage", "model"}),
		modelErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "errors_total",
			Help:      "Failed model calls.",
		}, []string{"stage", "model"}),
		modelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Tokens billed by kind.",
		}, []string{"stage", "kind"}),
		modelCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "cost_nanodollars_total",
			Help:      "Model spend in nano-dollars.",
		}, []string{"stage"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "call_duration_seconds",
			Help:      "Duration of model calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stages_total",
			Help:      "Stage executions by outcome.",
		}, []string{"stage", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Analysis runs by subject kind and final status.",
		}, []string{"kind", "status"}),
		runCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_cost_usd",
			Help:      "Total model spend per completed run.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by tier and result.",
		}, []string{"tier", "result"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.modelCalls,
		m.modelErrors,
		m.modelTokens,
		m.modelCost,
		m.modelLatency,
		m.stages,
		m.runs,
		m.runCost,
		m.cacheHits,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per gin route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveCall(stage, modelName string, rec model.TokenUsageRecord, latency time.Duration) {
	m.modelCalls.WithLabelValues(stage, modelName).Inc()
	m.modelTokens.WithLabelValues(stage, "input").Add(float64(rec.InputTokens))
	m.modelTokens.WithLabelValues(stage, "output").Add(float64(rec.OutputTokens))
	m.modelTokens.WithLabelValues(stage, "system").Add(float64(rec.SystemTokens))
	m.modelCost.WithLabelValues(stage).Add(float64(rec.Cost))
	m.modelLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

func (m *Metrics) ObserveCallError(stage, modelName string) {
	m.modelErrors.WithLabelValues(stage, modelName).Inc()
}

func (m *Metrics) ObserveStage(stage string, outcome pipeline.StageOutcome) {
	m.stages.WithLabelValues(stage, string(outcome)).Inc()
}

// ObserveRun records a finished run; cost is only observed for runs that called the model.
func (m *Metrics) ObserveRun(kind model.SubjectKind, status model.RunStatus, cost model.Cost) {
	m.runs.WithLabelValues(string(kind), string(status)).Inc()
	if status == model.RunStatusCompleted {
		m.runCost.Observe(cost.USD())
	}
}

// ObserveCacheLookup records a result cache lookup. tier is "memory" or "store".
func (m *Metrics) ObserveCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHits.WithLabelValues(tier, result).Inc()
}
