package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/covox/relay/internal/ai"
	"github.com/covox/relay/internal/api/router"
	"github.com/covox/relay/internal/compliance"
	"github.com/covox/relay/internal/config"
	"github.com/covox/relay/internal/http/handlers"
	"github.com/covox/relay/internal/observability/metrics"
	"github.com/covox/relay/internal/relay"
	"github.com/covox/relay/internal/telephony"
	"github.com/covox/relay/pkg/logging"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting relay gateway", "env", cfg.Env, "mode", cfg.RelayMode, "port", cfg.Port)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	relayMetrics := metrics.NewRelayMetrics(registry)
	complianceMetrics := metrics.NewComplianceMetrics(registry)

	if cfg.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	aiClient := ai.NewClient(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel, logger)

	var control relay.CallControl
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		client, err := telephony.NewClient(telephony.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			BaseURL:    cfg.TwilioBaseURL,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("telephony client init failed", "error", err)
			os.Exit(1)
		}
		control = client
	} else {
		logger.Warn("twilio credentials missing; calls will not be hung up after finalize")
	}

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup; outcome records may fail", "addr", cfg.RedisAddr, "error", err)
	}
	cancelPing()
	outcomes := relay.NewRecordStore(rdb)

	var engine relay.SessionEngine
	switch cfg.RelayMode {
	case config.ModeConversation:
		engine = relay.NewConversationEngine(relay.ConversationConfig{
			Streamer:     aiClient,
			SystemPrompt: cfg.SystemPrompt,
			Metrics:      relayMetrics,
			Logger:       logger,
		})
	default:
		engine = relay.NewQuestionnaireEngine(relay.QuestionnaireConfig{
			Validator: aiClient,
			Control:   control,
			Outcomes:  outcomes,
			Companies: relay.CompanyPolicy{
				Known: cfg.KnownCompanies,
				Fold:  cfg.CompanyMatch == config.CompanyMatchFold,
			},
			SilenceTimeout: cfg.SilenceTimeout,
			MaxInvalid:     cfg.MaxInvalidAnswers,
			Metrics:        relayMetrics,
			Logger:         logger,
		})
	}

	hub := compliance.NewHub(complianceMetrics, logger)
	var classifier compliance.Classifier
	if cfg.ComplianceClassify {
		classifier = aiClient
	}
	pipeline := compliance.NewPipeline(compliance.PipelineConfig{
		Dedup:      compliance.NewDedupCache(cfg.TranscriptDedupTTL),
		Windows:    compliance.NewContextWindows(cfg.ComplianceContextSize),
		Classifier: classifier,
		Hub:        hub,
		Logger:     logger,
	})

	handler := router.New(&router.Config{
		Logger:         logger,
		TwiML:          handlers.NewTwiMLHandler(cfg, logger),
		Relay:          relay.NewHandler(engine, relayMetrics, logger),
		ObserverHub:    hub,
		Webhooks:       compliance.NewWebhookHandler(pipeline, complianceMetrics, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	// No Read/WriteTimeout: the relay and observer websockets are
	// long-lived and must not be cut by server-wide deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
