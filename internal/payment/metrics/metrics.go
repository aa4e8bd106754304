package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the payment service collectors.
// Methods on a nil *Metrics are no-ops.
type Metrics struct {
	paymentsCreated        *prometheus.CounterVec
	gatewayEvents          *prometheus.CounterVec
	withdrawals            *prometheus.CounterVec
	reconciliationRequired *prometheus.CounterVec
	gatewayRequestDuration *prometheus.HistogramVec
	RequestCounter         *prometheus.CounterVec
	RequestLatency         *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_created_total",
				Help: "Payments created, by purpose, method and outcome",
			},
			[]string{"purpose", "method", "outcome"},
		),
		gatewayEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_events_total",
				Help: "Gateway notifications handled, by event type and outcome",
			},
			[]string{"event", "outcome"},
		),
		withdrawals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withdrawals_total",
				Help: "Withdrawal requests, by method and final state",
			},
			[]string{"method", "status"},
		),
		reconciliationRequired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reconciliation_required_total",
				Help: "Divergences between ledger and gateway that need an operator",
			},
			[]string{"operation"},
		),
		gatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Duration of outbound gateway calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	reg.MustRegister(
		m.paymentsCreated,
		m.gatewayEvents,
		m.withdrawals,
		m.reconciliationRequired,
		m.gatewayRequestDuration,
		m.RequestCounter,
		m.RequestLatency,
	)
	return m
}

func (m *Metrics) PaymentCreated(purpose, method, outcome string) {
	if m == nil {
		return
	}
	m.paymentsCreated.WithLabelValues(purpose, method, outcome).Inc()
}

func (m *Metrics) GatewayEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.gatewayEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) Withdrawal(method, status string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(method, status).Inc()
}

func (m *Metrics) ReconciliationRequired(operation string) {
	if m == nil {
		return
	}
	m.reconciliationRequired.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveGatewayCall(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayRequestDuration.WithLabelValues(operation, outcome).Observe(seconds)
}
