// Package main provides the entry point for the PDF acquisition worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/database"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/events"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/pdf"
	"github.com/helixir/paper-discovery-service/internal/pdfqueue"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

// queueDepthInterval is how often the worker samples per-status job counts
// into the queue depth gauge.
const queueDepthInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("paper-discovery-service worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	metrics := observability.NewMetrics("paper_discovery")

	jobRepo := repository.NewPgJobRepository(db)
	paperRepo := repository.NewPgPaperRepository(db)

	// PDF downloader and extraction fallback chain.
	downloader := pdf.NewDownloader(pdf.Config{
		Timeout: cfg.PDFQueue.DownloadTimeout,
		MaxSize: cfg.PDFQueue.MaxPDFSizeBytes,
	})
	chain := pdfqueue.NewChain(
		pdfqueue.DefaultChainExtractors(cfg.Extraction, downloader),
		domain.Confidence(cfg.PDFQueue.MinConfidence),
		metrics,
		logger,
	)

	// Job status events go to Kafka when configured. The in-process bus only
	// matters in the server process, where SSE subscribers live.
	var sink events.Sink
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, metrics, logger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close kafka publisher")
			}
		}()
		sink = kafkaPublisher
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka event mirror enabled")
	}

	pool := pdfqueue.NewPool(jobRepo, paperRepo, downloader, chain, sink, metrics, logger, cfg.PDFQueue)

	errCh := make(chan error, 1)

	// Metrics server.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddress(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("address", cfg.Server.MetricsAddress()).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()

		jobService := pdfqueue.NewService(jobRepo, sink, metrics, logger)
		go reportQueueDepth(ctx, jobService, logger)
	}

	logger.Info().
		Int("workers", cfg.PDFQueue.Workers).
		Int("max_attempts", cfg.PDFQueue.MaxAttempts).
		Str("min_confidence", cfg.PDFQueue.MinConfidence).
		Msg("starting PDF worker pool")

	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("worker failed")
		stop()
		<-poolDone
		return err
	}

	// Workers finish their in-flight job before exiting.
	select {
	case <-poolDone:
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn().Msg("worker pool did not drain before shutdown timeout")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("worker stopped")
	return nil
}

// reportQueueDepth samples per-status job counts on a fixed interval until
// the context is cancelled.
func reportQueueDepth(ctx context.Context, jobs *pdfqueue.Service, logger zerolog.Logger) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := jobs.QueueDepth(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to sample queue depth")
			}
		}
	}
}
