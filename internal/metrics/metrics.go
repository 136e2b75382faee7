// Package metrics defines the client-side Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes.
const (
	RefreshOK     = "ok"
	RefreshFailed = "failed"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	refresh  *prometheus.CounterVec
	retries  prometheus.Counter
	breaker  *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookbazaar_client_requests_total",
				Help: "Outbound API requests by method and status (status 0 = transport error)",
			},
			[]string{"method", "status"},
		),
		refresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookbazaar_client_refresh_total",
				Help: "Access token refresh attempts by result",
			},
			[]string{"result"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookbazaar_client_retries_total",
			Help: "Requests replayed after a successful refresh",
		}),
		breaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookbazaar_client_circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
	reg.MustRegister(m.requests, m.refresh, m.retries, m.breaker)
	return m
}

// Request records one outbound request.
func (m *Metrics) Request(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Refresh records one refresh attempt.
func (m *Metrics) Refresh(ok bool) {
	if m == nil {
		return
	}
	result := RefreshOK
	if !ok {
		result = RefreshFailed
	}
	m.refresh.WithLabelValues(result).Inc()
}

// Retry records one replay after refresh.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// BreakerState records the breaker state (0=closed, 1=half-open, 2=open).
func (m *Metrics) BreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breaker.WithLabelValues(name).Set(state)
}
