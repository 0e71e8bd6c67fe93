package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/gauges for the session relay.
type RelayMetrics struct {
	sessionsActive  prometheus.Gauge
	messagesTotal   *prometheus.CounterVec
	finalizedTotal  *prometheus.CounterVec
	recordFailures  prometheus.Counter
	framesSentTotal prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently connected relay sessions",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Inbound session messages by type",
		}, []string{"type"}),
		finalizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "session",
			Name:      "finalized_total",
			Help:      "Finalized calls by termination reason",
		}, []string{"reason"}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "session",
			Name:      "record_write_failures_total",
			Help:      "Outcome record writes that failed",
		}),
		framesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Outbound text frames sent over session transports",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsActive, m.messagesTotal, m.finalizedTotal, m.recordFailures, m.framesSentTotal)
	return m
}

func (m *RelayMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *RelayMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *RelayMetrics) ObserveMessage(msgType string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(msgType).Inc()
}

func (m *RelayMetrics) ObserveFinalized(reason string) {
	if m == nil {
		return
	}
	m.finalizedTotal.WithLabelValues(reason).Inc()
}

func (m *RelayMetrics) ObserveRecordFailure() {
	if m == nil {
		return
	}
	m.recordFailures.Inc()
}

func (m *RelayMetrics) ObserveFrameSent() {
	if m == nil {
		return
	}
	m.framesSentTotal.Inc()
}

// ComplianceMetrics exposes counters/histograms for the transcript pipeline.
type ComplianceMetrics struct {
	webhookTotal    *prometheus.CounterVec
	deliveredTotal  prometheus.Counter
	observersActive prometheus.Gauge
	webhookLatency  *prometheus.HistogramVec
}

func NewComplianceMetrics(reg prometheus.Registerer) *ComplianceMetrics {
	m := &ComplianceMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "compliance",
			Name:      "webhook_total",
			Help:      "Inbound transcription webhooks by event and disposition",
		}, []string{"event", "status"}),
		deliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "compliance",
			Name:      "delivered_total",
			Help:      "Events delivered to compliance observers",
		}),
		observersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "compliance",
			Name:      "observers_active",
			Help:      "Currently connected compliance observers",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "compliance",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of transcription webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.deliveredTotal, m.observersActive, m.webhookLatency)
	return m
}

func (m *ComplianceMetrics) ObserveWebhook(event, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(event, status).Inc()
}

func (m *ComplianceMetrics) ObserveDelivered(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.deliveredTotal.Add(float64(count))
}

func (m *ComplianceMetrics) ObserverConnected() {
	if m == nil {
		return
	}
	m.observersActive.Inc()
}

func (m *ComplianceMetrics) ObserverDisconnected() {
	if m == nil {
		return
	}
	m.observersActive.Dec()
}

func (m *ComplianceMetrics) ObserveWebhookLatency(event string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(event).Observe(seconds)
}
