package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	authzDecisions  *prometheus.CounterVec
	cascadeDuration prometheus.Histogram
	cascadeRoles    prometheus.Counter
	cascadeUsers    prometheus.Counter
	cascadeFailures prometheus.Counter
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arcline_http_requests_total",
		Help: "Number of HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arcline_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	authz := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arcline_authz_decisions_total",
		Help: "Authorization gate decisions by outcome.",
	}, []string{"outcome"})
	cascadeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcline_role_cascade_duration_seconds",
		Help:    "Duration of role permission cascades.",
		Buckets: prometheus.DefBuckets,
	})
	cascadeRoles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arcline_role_cascade_roles_total",
		Help: "Roles visited by permission cascades.",
	})
	cascadeUsers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arcline_role_cascade_users_total",
		Help: "User snapshots refreshed by permission cascades.",
	})
	cascadeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arcline_role_cascade_failures_total",
		Help: "Entities a cascade failed to refresh.",
	})
	registry.MustRegister(requests, duration, authz, cascadeDuration, cascadeRoles, cascadeUsers, cascadeFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authzDecisions:  authz,
		cascadeDuration: cascadeDuration,
		cascadeRoles:    cascadeRoles,
		cascadeUsers:    cascadeUsers,
		cascadeFailures: cascadeFailures,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
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

// AuthzDecision counts one gate decision.
func (m *Metrics) AuthzDecision(outcome string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(outcome).Inc()
}

// ObserveCascade records the shape of one cascade run.
func (m *Metrics) ObserveCascade(took time.Duration, roles, users, failures int) {
	if m == nil {
		return
	}
	m.cascadeDuration.Observe(took.Seconds())
	m.cascadeRoles.Add(float64(roles))
	m.cascadeUsers.Add(float64(users))
	m.cascadeFailures.Add(float64(failures))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
