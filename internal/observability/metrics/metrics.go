package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)

// Metrics aggregates the billing-core prometheus collectors.
type Metrics struct {
	paymentsCreated    *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	refundsRejected    prometheus.Counter
	sequenceConflicts  prometheus.Counter
	gatewaySubmit      *prometheus.HistogramVec
	renderFailures     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		paymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "payments_created_total",
			Help:      "Payments created, by method.",
		}, []string{"method"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "payment_status_transitions_total",
			Help:      "Applied payment status transitions.",
		}, []string{"from", "to"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "gateway_webhook_events_total",
			Help:      "Gateway webhook events, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		refundsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "refunds_rejected_total",
			Help:      "Refunds rejected by the over-refund guard.",
		}),
		sequenceConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "sequence_conflicts_total",
			Help:      "Document number allocations retried after a conflict.",
		}),
		gatewaySubmit: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "gateway_submit_seconds",
			Help:      "Latency of outbound gateway submissions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway", "outcome"}),
		renderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "document_render_failures_total",
			Help:      "Best-effort document renders that failed.",
		}),
	}

	prometheus.MustRegister(
		m.paymentsCreated,
		m.statusTransitions,
		m.webhookEvents,
		m.refundsRejected,
		m.sequenceConflicts,
		m.gatewaySubmit,
		m.renderFailures,
	)
	return m
}

func (m *Metrics) RecordPaymentCreated(method string) {
	if m == nil {
		return
	}
	m.paymentsCreated.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordWebhookEvent(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordRefundRejected() {
	if m == nil {
		return
	}
	m.refundsRejected.Inc()
}

func (m *Metrics) RecordSequenceConflict() {
	if m == nil {
		return
	}
	m.sequenceConflicts.Inc()
}

func (m *Metrics) ObserveGatewaySubmit(gateway, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewaySubmit.WithLabelValues(gateway, outcome).Observe(seconds)
}

func (m *Metrics) RecordRenderFailure() {
	if m == nil {
		return
	}
	m.renderFailures.Inc()
}
