// Package metrics exposes Prometheus counters and histograms for the HTTP
// API and the optimizer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sander-remitly/plate-calc/internal/algorithm"
)

const namespace = "platecalc"

// Calculation outcomes used as label values
const (
	OutcomeSuccess    = "success"
	OutcomeInfeasible = "infeasible"
	OutcomeEmpty      = "empty_inventory"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

// Metrics holds the collectors registered for one server
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	calculations    *prometheus.CounterVec
	calcDuration    prometheus.Histogram
	platesUsed      prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Optimizer runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		calcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Time spent in the optimizer.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		platesUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plates_per_solution",
			Help:      "Total plates in successful solutions.",
			Buckets:   prometheus.LinearBuckets(2, 2, 10),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.calculations,
		m.calcDuration,
		m.platesUsed,
		m.cacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so /api/plates/{id} is one series regardless of the ID
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveCalculation records one optimizer run
func (m *Metrics) ObserveCalculation(result algorithm.Result, d time.Duration) {
	if m == nil {
		return
	}

	mode := string(result.Mode)
	if !result.Mode.Valid() {
		mode = "unknown"
	}

	m.calculations.WithLabelValues(mode, Outcome(result)).Inc()
	m.calcDuration.Observe(d.Seconds())
	if result.Success {
		m.platesUsed.Observe(float64(result.TotalPlates))
	}
}

// ObserveCacheLookup records a cache hit or miss
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// Outcome maps a result to its label value
func Outcome(result algorithm.Result) string {
	switch {
	case result.Success:
		return OutcomeSuccess
	case errors.Is(result.Err, algorithm.ErrInfeasible):
		return OutcomeInfeasible
	case errors.Is(result.Err, algorithm.ErrEmptyInventory):
		return OutcomeEmpty
	case errors.Is(result.Err, algorithm.ErrInvalidTarget), errors.Is(result.Err, algorithm.ErrInvalidMode):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
