package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	SummaryGenerated   = "generated"
	SummaryUnavailable = "unavailable"
	SummaryDropped     = "dropped"
)

// Metrics collects Prometheus metrics for the service. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	shiftsTotal     *prometheus.CounterVec
	summariesTotal  *prometheus.CounterVec
	lastVariance    prometheus.Gauge
	digestRevenue   *prometheus.GaugeVec
	digestVariance  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelshift_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuelshift_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	shifts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelshift_shifts_total",
		Help: "Shift lifecycle events.",
	}, []string{"event"})
	summaries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelshift_ai_summaries_total",
		Help: "AI summary requests by outcome.",
	}, []string{"outcome"})
	lastVariance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fuelshift_last_shift_variance",
		Help: "Variance of the most recently closed shift.",
	})
	digestRevenue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fuelshift_history_revenue",
		Help: "Total revenue of closed shifts in the period at the last digest.",
	}, []string{"period"})
	digestVariance := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fuelshift_history_net_variance",
		Help: "Net variance of closed shifts in the period at the last digest.",
	}, []string{"period"})
	registry.MustRegister(requests, duration, shifts, summaries, lastVariance, digestRevenue, digestVariance)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		shiftsTotal:     shifts,
		summariesTotal:  summaries,
		lastVariance:    lastVariance,
		digestRevenue:   digestRevenue,
		digestVariance:  digestVariance,
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := RoutePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.Status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ShiftStarted() {
	if m == nil {
		return
	}
	m.shiftsTotal.WithLabelValues("started").Inc()
}

func (m *Metrics) ShiftCancelled() {
	if m == nil {
		return
	}
	m.shiftsTotal.WithLabelValues("cancelled").Inc()
}

func (m *Metrics) ShiftClosed(variance float64) {
	if m == nil {
		return
	}
	m.shiftsTotal.WithLabelValues("closed").Inc()
	m.lastVariance.Set(variance)
}

func (m *Metrics) SummaryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDigest(period string, revenue float64, netVariance float64) {
	if m == nil {
		return
	}
	m.digestRevenue.WithLabelValues(period).Set(revenue)
	m.digestVariance.WithLabelValues(period).Set(netVariance)
}

// StatusRecorder captures the status code written by a handler.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *StatusRecorder) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func RoutePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
