package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	graphSizeBuckets      = []float64{10, 50, 100, 500, 1000, 5000}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	TransitionsTotal       *prometheus.CounterVec
	TransitionConflicts    *prometheus.CounterVec
	GuardEvaluationsTotal  *prometheus.CounterVec

	// Graph metrics
	GraphMutationsTotal    *prometheus.CounterVec
	GraphRejectionsTotal   *prometheus.CounterVec
	OverridesGrantedTotal  *prometheus.CounterVec
	ReadinessChecksTotal   *prometheus.CounterVec

	// Critical path metrics
	CPMDuration  prometheus.Histogram
	CPMGraphSize prometheus.Histogram

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "girder_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Workflow
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_workflow_transitions_total",
			Help: "Total number of workflow transition requests.",
		}, []string{"entity_type", "to_state", "status"}),
		TransitionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_workflow_transition_conflicts_total",
			Help: "Total number of transitions rejected on a stale version.",
		}, []string{"entity_type"}),
		GuardEvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_guard_evaluations_total",
			Help: "Total number of guard predicate evaluations.",
		}, []string{"entity_type", "result"}),

		// Graph
		GraphMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_graph_mutations_total",
			Help: "Total number of accepted dependency graph mutations.",
		}, []string{"operation"}),
		GraphRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_graph_rejections_total",
			Help: "Total number of rejected dependency graph mutations.",
		}, []string{"operation", "code"}),
		OverridesGrantedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_overrides_granted_total",
			Help: "Total number of dependency overrides granted.",
		}, []string{"actor_role"}),
		ReadinessChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "girder_readiness_checks_total",
			Help: "Total number of task readiness evaluations.",
		}, []string{"result"}),

		// Critical path
		CPMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "girder_cpm_duration_seconds",
			Help:    "Critical path calculation duration in seconds.",
			Buckets: engineDurationBuckets,
		}),
		CPMGraphSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "girder_cpm_graph_size_tasks",
			Help:    "Number of tasks in each critical path calculation.",
			Buckets: graphSizeBuckets,
		}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "girder_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "girder_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.TransitionConflicts,
		m.GuardEvaluationsTotal,
		m.GraphMutationsTotal,
		m.GraphRejectionsTotal,
		m.OverridesGrantedTotal,
		m.ReadinessChecksTotal,
		m.CPMDuration,
		m.CPMGraphSize,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordTransition records the outcome of one transition request.
func (m *Metrics) RecordTransition(entityType, toState, status string) {
	m.TransitionsTotal.WithLabelValues(entityType, toState, status).Inc()
}

// RecordTransitionConflict records a transition rejected on a stale version.
func (m *Metrics) RecordTransitionConflict(entityType string) {
	m.TransitionConflicts.WithLabelValues(entityType).Inc()
}

// RecordGuardEvaluation records one guard predicate evaluation.
func (m *Metrics) RecordGuardEvaluation(entityType string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.GuardEvaluationsTotal.WithLabelValues(entityType, result).Inc()
}

// RecordGraphMutation records an accepted dependency mutation.
func (m *Metrics) RecordGraphMutation(operation string) {
	m.GraphMutationsTotal.WithLabelValues(operation).Inc()
}

// RecordGraphRejection records a rejected dependency mutation by error code.
func (m *Metrics) RecordGraphRejection(operation, code string) {
	m.GraphRejectionsTotal.WithLabelValues(operation, code).Inc()
}

// RecordOverrideGranted records a granted override.
func (m *Metrics) RecordOverrideGranted(actorRole string) {
	m.OverridesGrantedTotal.WithLabelValues(actorRole).Inc()
}

// RecordReadinessCheck records a readiness evaluation outcome.
func (m *Metrics) RecordReadinessCheck(ready bool) {
	result := "blocked"
	if ready {
		result = "ready"
	}
	m.ReadinessChecksTotal.WithLabelValues(result).Inc()
}

// RecordCPM records one critical path calculation.
func (m *Metrics) RecordCPM(duration time.Duration, taskCount int) {
	m.CPMDuration.Observe(duration.Seconds())
	m.CPMGraphSize.Observe(float64(taskCount))
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pathPattern, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pathPattern).Observe(duration.Seconds())
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
