package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics exposes counters/histograms for the conversation engine.
// All methods are nil-safe so the engine can run without a registry in
// tests.
type EngineMetrics struct {
	turnsTotal         *prometheus.CounterVec
	turnLatency        prometheus.Histogram
	guardrailRedirects prometheus.Counter
	contextEvictions   prometheus.Counter
	liveContexts       prometheus.GaugeFunc
}

func NewEngineMetrics(reg prometheus.Registerer, liveContexts func() float64) *EngineMetrics {
	m := &EngineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cobranca",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"intent", "emotion"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cobranca",
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "Latency of full turn processing",
			Buckets:   prometheus.DefBuckets,
		}),
		guardrailRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cobranca",
			Subsystem: "engine",
			Name:      "guardrail_redirects_total",
			Help:      "Total replies redirected back to the billing domain",
		}),
		contextEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cobranca",
			Subsystem: "engine",
			Name:      "context_evictions_total",
			Help:      "Total conversation contexts evicted by TTL",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.guardrailRedirects, m.contextEvictions)
	if liveContexts != nil {
		m.liveContexts = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cobranca",
			Subsystem: "engine",
			Name:      "live_contexts",
			Help:      "Conversation contexts currently in memory",
		}, liveContexts)
		reg.MustRegister(m.liveContexts)
	}
	return m
}

func (m *EngineMetrics) RecordTurn(intent, emotion string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, emotion).Inc()
	m.turnLatency.Observe(d.Seconds())
}

func (m *EngineMetrics) RecordGuardrailRedirect() {
	if m == nil {
		return
	}
	m.guardrailRedirects.Inc()
}

func (m *EngineMetrics) RecordEviction() {
	if m == nil {
		return
	}
	m.contextEvictions.Inc()
}

// MessagingMetrics exposes counters/histograms for the webhook transport
// and the outbound provider client.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cobranca",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound ZapSend webhooks",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cobranca",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound ZapSend sends",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cobranca",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
