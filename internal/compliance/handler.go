package compliance

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/covox/relay/internal/observability/metrics"
	"github.com/covox/relay/pkg/logging"
)

// WebhookHandler exposes the transcription and summary webhook endpoints.
type WebhookHandler struct {
	pipeline *Pipeline
	metrics  *metrics.ComplianceMetrics
	logger   *logging.Logger
}

func NewWebhookHandler(pipeline *Pipeline, m *metrics.ComplianceMetrics, logger *logging.Logger) *WebhookHandler {
	if pipeline == nil {
		panic("compliance: webhook handler requires a pipeline")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{pipeline: pipeline, metrics: m, logger: logger}
}

type webhookResponse struct {
	OK               bool `json:"ok"`
	DeliveredClients int  `json:"delivered_clients"`
}

// TranscriptionWebhook ingests one transcript snippet.
func (h *WebhookHandler) TranscriptionWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	payload, err := ParsePayload(r)
	if err != nil {
		h.logger.Warn("undecodable transcription webhook", "error", err)
		h.metrics.ObserveWebhook("transcription", "bad_request")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	delivered, duplicate := h.pipeline.HandleTranscription(r.Context(), payload)
	status := "accepted"
	if duplicate {
		status = "duplicate"
	}
	h.metrics.ObserveWebhook("transcription", status)
	h.metrics.ObserveWebhookLatency("transcription", time.Since(start).Seconds())

	writeJSON(w, webhookResponse{OK: true, DeliveredClients: delivered})
}

// SummaryWebhook ingests the end-of-call summary event.
func (h *WebhookHandler) SummaryWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	payload, err := ParsePayload(r)
	if err != nil {
		h.logger.Warn("undecodable summary webhook", "error", err)
		h.metrics.ObserveWebhook("summary", "bad_request")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	delivered := h.pipeline.HandleSummary(r.Context(), payload)
	h.metrics.ObserveWebhook("summary", "accepted")
	h.metrics.ObserveWebhookLatency("summary", time.Since(start).Seconds())

	writeJSON(w, webhookResponse{OK: true, DeliveredClients: delivered})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
