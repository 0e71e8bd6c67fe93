// Package router wires the HTTP surface: the TwiML webhook, the relay and
// observer websockets, the transcription webhooks, and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/covox/relay/internal/compliance"
	"github.com/covox/relay/internal/http/handlers"
	"github.com/covox/relay/internal/http/middleware"
	"github.com/covox/relay/pkg/logging"
)

// Config collects the handlers mounted by the router. Nil entries leave the
// corresponding routes unmounted, which the tests rely on.
type Config struct {
	Logger         *logging.Logger
	TwiML          *handlers.TwiMLHandler
	Relay          http.Handler
	ObserverHub    *compliance.Hub
	Webhooks       *compliance.WebhookHandler
	MetricsHandler http.Handler
}

// New builds the service router.
func New(cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health", handlers.HealthCheck)

	if cfg.TwiML != nil {
		r.Get("/twiml", cfg.TwiML.ServeTwiML)
		r.Post("/twiml", cfg.TwiML.ServeTwiML)
	}
	if cfg.Relay != nil {
		r.Handle("/ws", cfg.Relay)
	}
	if cfg.ObserverHub != nil {
		r.HandleFunc("/compliance", cfg.ObserverHub.HandleWS)
	}
	if cfg.Webhooks != nil {
		r.Post("/webhooks/transcription", cfg.Webhooks.TranscriptionWebhook)
		r.Post("/webhooks/summary", cfg.Webhooks.SummaryWebhook)
	}

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	return r
}
