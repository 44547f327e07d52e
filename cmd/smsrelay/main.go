package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/payment-sms-relay/cmd/mainconfig"
	"github.com/wolfman30/payment-sms-relay/internal/api/router"
	"github.com/wolfman30/payment-sms-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/payment-sms-relay/internal/config"
	"github.com/wolfman30/payment-sms-relay/internal/delivery"
	"github.com/wolfman30/payment-sms-relay/internal/http/handlers"
	"github.com/wolfman30/payment-sms-relay/internal/ingest"
	"github.com/wolfman30/payment-sms-relay/internal/observability/metrics"
	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/worker/relay"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting payment sms relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"settings_backend", cfg.SettingsBackend,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.BuildSettingsStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build settings store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if err := bootstrap.SeedDeliverySettings(ctx, store, cfg, logger); err != nil {
		logger.Error("failed to seed delivery settings", "error", err)
		os.Exit(1)
	}

	var (
		sqsClient *sqs.Client
		sesClient *sesv2.Client
	)
	needSES := cfg.AlertEmailTo != "" && cfg.AlertProvider == appconfig.AlertProviderSES
	if !cfg.UseMemoryQueue || needSES {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if !cfg.UseMemoryQueue {
			sqsClient = mainconfig.NewSQSClient(awsCfg, cfg)
		}
		if needSES {
			sesClient = mainconfig.NewSESClient(awsCfg, cfg)
		}
		logger.Debug("aws config loaded", "region", awsCfg.Region, "endpoint_override", cfg.AWSEndpointOverride)
	}
	smsQueue, err := bootstrap.BuildQueue(cfg, sqsClient)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.NewRelayMetrics(registry)

	alerter, err := bootstrap.BuildAlerter(cfg, sesClient, logger)
	if err != nil {
		logger.Error("failed to build alerter", "error", err)
		os.Exit(1)
	}

	agent := delivery.NewAgent(store, logger, delivery.WithMetrics(relayMetrics))
	workerOpts := []relay.Option{relay.WithWorkerCount(cfg.WorkerCount)}
	if alerter != nil {
		workerOpts = append(workerOpts, relay.WithAlerter(alerter))
	}
	worker := relay.NewWorker(smsQueue, store, agent, logger, workerOpts...)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	publisher := queue.NewPublisher(smsQueue)

	var sources sync.WaitGroup
	if cfg.TermuxPollEnabled {
		if !ingest.IsTermux() {
			logger.Warn("TERMUX_POLL_ENABLED set but not running inside Termux; termux-sms-list may be unavailable")
		}
		poller := ingest.NewTermuxPoller(store, logger,
			ingest.WithPollInterval(cfg.TermuxPollInterval),
			ingest.WithPollLimit(cfg.TermuxPollLimit),
		)
		sources.Add(1)
		go func() {
			defer sources.Done()
			runSource(ctx, poller, ingest.Instrument(publisher, ingest.SourceTermux, relayMetrics), logger)
		}()
	}

	r := router.New(&router.Config{
		Logger:          logger,
		IngestHandler:   ingest.NewHTTPHandler(ingest.Instrument(publisher, ingest.SourceHTTP, relayMetrics), cfg.IngestToken, logger),
		StatusHandler:   handlers.NewStatusHandler(store, logger),
		SettingsHandler: handlers.NewSettingsHandler(store, logger),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminAuthSecret: cfg.AdminJWTSecret,
		IngestRateLimit: cfg.IngestRateLimit,
		IngestRateBurst: cfg.IngestRateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down payment sms relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Sources stop first so nothing new is queued, then the workers drain
	// whatever delivery is already running.
	sources.Wait()
	cancelWorkers()
	worker.Wait()

	logger.Info("payment sms relay stopped")
}

func runSource(ctx context.Context, src ingest.Source, pub ingest.Publisher, logger *logging.Logger) {
	if err := src.Run(ctx, pub); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingest source stopped", "error", err)
	}
}
