package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "school"

// MessagingMetrics exposes counters/histograms for the WhatsApp inbox flows.
type MessagingMetrics struct {
	inboundTotal      *prometheus.CounterVec
	statusTotal       *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	scheduledTotal    *prometheus.CounterVec
	assistantTotal    *prometheus.CounterVec
	webhookLatency    *prometheus.HistogramVec
	dispatchBatchSize prometheus.Histogram
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp message webhooks by message kind and result",
		}, []string{"kind", "result"}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "status_update_total",
			Help:      "Delivery acknowledgements by outcome",
		}, []string{"outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Outbound sends by sender and status",
		}, []string{"sender", "status"}),
		scheduledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatch_total",
			Help:      "Scheduled message dispatch results",
		}, []string{"result"}),
		assistantTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "replies_total",
			Help:      "Assistant reply attempts by result",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		dispatchBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Due rows selected per dispatcher pass",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.statusTotal,
		m.outboundTotal,
		m.scheduledTotal,
		m.assistantTotal,
		m.webhookLatency,
		m.dispatchBatchSize,
	)
	return m
}

func (m *MessagingMetrics) ObserveInbound(kind, result string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, result).Inc()
}

func (m *MessagingMetrics) ObserveStatusUpdate(outcome string) {
	if m == nil {
		return
	}
	m.statusTotal.WithLabelValues(outcome).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(sender, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(sender, status).Inc()
}

func (m *MessagingMetrics) ObserveScheduled(result string) {
	if m == nil {
		return
	}
	m.scheduledTotal.WithLabelValues(result).Inc()
}

func (m *MessagingMetrics) ObserveDispatchBatch(size int) {
	if m == nil {
		return
	}
	m.dispatchBatchSize.Observe(float64(size))
}

func (m *MessagingMetrics) ObserveAssistant(result string) {
	if m == nil {
		return
	}
	m.assistantTotal.WithLabelValues(result).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(route string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(route).Observe(seconds)
}
