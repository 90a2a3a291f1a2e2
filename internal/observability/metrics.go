package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the portal.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	permissionChecks *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	guardedRequests  *prometheus.CounterVec
	guardVerdicts    *prometheus.CounterVec
}

// NewMetrics initialises the registry and the portal metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_permission_checks_total",
		Help: "Permission queries by action, resource and outcome.",
	}, []string{"action", "resource", "outcome", "reason"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_permission_resolutions_total",
		Help: "Completed permission resolution cycles by outcome.",
	}, []string{"outcome"})
	guarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_guarded_requests_total",
		Help: "Permission checked backend calls by action and outcome.",
	}, []string{"action", "outcome"})
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_route_guard_verdicts_total",
		Help: "Route guard evaluations by verdict.",
	}, []string{"verdict"})
	registry.MustRegister(requests, duration, checks, resolutions, guarded, verdicts)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		permissionChecks: checks,
		resolutions:      resolutions,
		guardedRequests:  guarded,
		guardVerdicts:    verdicts,
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePermissionCheck counts a permission query.
func (m *Metrics) ObservePermissionCheck(action, resource string, allowed bool, reason string) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "granted"
	}
	m.permissionChecks.WithLabelValues(action, resource, outcome, reason).Inc()
}

// ObserveResolution counts a finished resolution cycle.
func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// ObserveGuardedRequest counts a permission checked backend call.
func (m *Metrics) ObserveGuardedRequest(action, outcome string) {
	if m == nil {
		return
	}
	m.guardedRequests.WithLabelValues(action, outcome).Inc()
}

// ObserveGuard counts a route guard verdict.
func (m *Metrics) ObserveGuard(verdict string) {
	if m == nil {
		return
	}
	m.guardVerdicts.WithLabelValues(verdict).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
