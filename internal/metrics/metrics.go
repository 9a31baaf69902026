// Package metrics exposes Prometheus instruments for the agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "customer_agent"

// Metrics groups all Prometheus instruments used by the service. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	InboundMessages     *prometheus.CounterVec
	DuplicateMessages   prometheus.Counter
	SignatureRejections prometheus.Counter
	TurnOutcomes        *prometheus.CounterVec
	ModelLatency        prometheus.Histogram
	HoldsSwept          prometheus.Counter
	Conversations       prometheus.Gauge
	PendingHolds        prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound customer messages by channel.",
		}, []string{"channel"}),
		DuplicateMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_messages_total",
			Help:      "Provider resends dropped by message ID.",
		}),
		SignatureRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_rejections_total",
			Help:      "Webhook requests rejected for a bad signature.",
		}),
		TurnOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Handled turns by outcome status and tool.",
		}, []string{"status", "tool"}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_seconds",
			Help:      "Completion call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		HoldsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_swept_total",
			Help:      "Expired slot holds removed by the sweeper.",
		}),
		Conversations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Customers with in-memory history.",
		}),
		PendingHolds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_holds",
			Help:      "Slot holds currently stored.",
		}),
	}
}

// RecordOutcome counts a handled turn. An empty tool is reported as "none".
func (m *Metrics) RecordOutcome(status, tool string) {
	if tool == "" {
		tool = "none"
	}
	m.TurnOutcomes.WithLabelValues(status, tool).Inc()
}

func (m *Metrics) ObserveModelLatency(seconds float64) {
	m.ModelLatency.Observe(seconds)
}

func (m *Metrics) IncInbound(channel string) {
	m.InboundMessages.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncDuplicate() {
	m.DuplicateMessages.Inc()
}

func (m *Metrics) IncSignatureRejected() {
	m.SignatureRejections.Inc()
}

// RecordSweep counts swept holds and refreshes the store gauges.
func (m *Metrics) RecordSweep(swept, conversations, holds int) {
	m.HoldsSwept.Add(float64(swept))
	m.Conversations.Set(float64(conversations))
	m.PendingHolds.Set(float64(holds))
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
