// Package main provides the entry point for the paper discovery HTTP server.
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

	"github.com/helixir/paper-discovery-service/internal/cache"
	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/database"
	"github.com/helixir/paper-discovery-service/internal/dedup"
	"github.com/helixir/paper-discovery-service/internal/events"
	"github.com/helixir/paper-discovery-service/internal/ingest"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/papersources"
	"github.com/helixir/paper-discovery-service/internal/papersources/arxiv"
	"github.com/helixir/paper-discovery-service/internal/papersources/openalex"
	"github.com/helixir/paper-discovery-service/internal/papersources/pubmed"
	"github.com/helixir/paper-discovery-service/internal/papersources/scopus"
	"github.com/helixir/paper-discovery-service/internal/papersources/semanticscholar"
	"github.com/helixir/paper-discovery-service/internal/pdfqueue"
	"github.com/helixir/paper-discovery-service/internal/ranking"
	"github.com/helixir/paper-discovery-service/internal/repository"
	"github.com/helixir/paper-discovery-service/internal/search"
	httpserver "github.com/helixir/paper-discovery-service/internal/server/http"
)

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
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-discovery-service server starting")

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

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		if err := migrator.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close migrator")
		}
		logger.Info().Msg("database migrations applied")
	}

	metrics := observability.NewMetrics("paper_discovery")

	// Repositories.
	paperRepo := repository.NewPgPaperRepository(db)
	jobRepo := repository.NewPgJobRepository(db)
	cacheRepo := repository.NewPgCacheRepository(db)

	// Search pipeline: registry, dedup, ranking, cache.
	registry := papersources.NewRegistry()
	registerPaperSources(registry, cfg, logger)

	var scorer ranking.Scorer
	if cfg.Embedding.Enabled {
		scorer = ranking.NewEmbeddingScorer(ranking.EmbeddingScorerConfig{
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.Embedding.Timeout,
		})
		logger.Info().Str("base_url", cfg.Embedding.BaseURL).Msg("using embedding semantic scorer")
	} else {
		scorer = ranking.NewLexicalScorer()
	}
	engine := ranking.NewEngine(scorer, cfg.Ranking.RecencyHalfLifeYears, logger)

	resultCache := cache.New(cacheRepo, cfg.Cache.FreshnessWindow, cfg.Cache.ExpiryWindow, logger)
	go purgeCacheLoop(ctx, resultCache, logger)

	searchService := search.NewService(
		registry,
		dedup.New(),
		engine,
		resultCache,
		metrics,
		logger,
		cfg.Search,
	)

	// Event fan-out: in-process bus for SSE subscribers, Kafka mirror when
	// configured.
	bus := events.NewBus(metrics, logger)
	defer bus.Close()

	sink := events.MultiSink{bus}
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, metrics, logger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close kafka publisher")
			}
		}()
		sink = append(sink, kafkaPublisher)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka event mirror enabled")
	}

	jobService := pdfqueue.NewService(jobRepo, sink, metrics, logger)
	ingestService := ingest.NewService(paperRepo, db, jobService, metrics, logger)

	// HTTP server. The write timeout must accommodate long-lived SSE streams,
	// so it is deliberately generous compared to the read timeout.
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout < 35*time.Minute {
		writeTimeout = 35 * time.Minute
	}
	server := httpserver.NewServer(
		httpserver.Config{
			Address:         cfg.Server.HTTPAddress(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    writeTimeout,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		searchService,
		ingestService,
		jobService,
		paperRepo,
		bus,
		db,
		logger,
	)

	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("address", cfg.Server.HTTPAddress()).Msg("HTTP server listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

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
	}

	// Block until a shutdown signal or a server failure.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

// cachePurgeInterval is how often expired search cache rows are deleted.
const cachePurgeInterval = time.Hour

// purgeCacheLoop deletes expired cache entries on a fixed interval until the
// context is cancelled.
func purgeCacheLoop(ctx context.Context, resultCache *cache.Cache, logger zerolog.Logger) {
	ticker := time.NewTicker(cachePurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := resultCache.PurgeExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("cache purge failed")
				continue
			}
			if deleted > 0 {
				logger.Debug().Int64("deleted", deleted).Msg("purged expired cache entries")
			}
		}
	}
}

// registerPaperSources registers all enabled paper sources with the registry.
func registerPaperSources(registry *papersources.Registry, cfg *config.Config, logger zerolog.Logger) {
	// OpenAlex.
	if cfg.PaperSources.OpenAlex.Enabled {
		oaCfg := cfg.PaperSources.OpenAlex
		registry.Register(openalex.New(openalex.Config{
			BaseURL:    oaCfg.BaseURL,
			Email:      cfg.Extraction.OpenAccessEmail,
			Timeout:    oaCfg.Timeout,
			RateLimit:  oaCfg.RateLimit,
			MaxResults: oaCfg.MaxResults,
			Enabled:    true,
		}))
		logger.Info().Msg("registered paper source: OpenAlex")
	}

	// Semantic Scholar.
	if cfg.PaperSources.SemanticScholar.Enabled {
		ssCfg := cfg.PaperSources.SemanticScholar
		registry.Register(semanticscholar.New(semanticscholar.Config{
			BaseURL:    ssCfg.BaseURL,
			APIKey:     ssCfg.APIKey,
			Timeout:    ssCfg.Timeout,
			RateLimit:  ssCfg.RateLimit,
			MaxResults: ssCfg.MaxResults,
			Enabled:    true,
		}))
		logger.Info().Msg("registered paper source: Semantic Scholar")
	}

	// PubMed.
	if cfg.PaperSources.PubMed.Enabled {
		pmCfg := cfg.PaperSources.PubMed
		registry.Register(pubmed.New(pubmed.Config{
			BaseURL:    pmCfg.BaseURL,
			APIKey:     pmCfg.APIKey,
			Timeout:    pmCfg.Timeout,
			RateLimit:  pmCfg.RateLimit,
			MaxResults: pmCfg.MaxResults,
			Enabled:    true,
			Slow:       pmCfg.Slow,
		}))
		logger.Info().Msg("registered paper source: PubMed")
	}

	// Scopus (only if an API key is provided).
	if cfg.PaperSources.Scopus.Enabled && cfg.PaperSources.Scopus.APIKey != "" {
		scCfg := cfg.PaperSources.Scopus
		registry.Register(scopus.New(scopus.Config{
			BaseURL:    scCfg.BaseURL,
			APIKey:     scCfg.APIKey,
			Timeout:    scCfg.Timeout,
			RateLimit:  scCfg.RateLimit,
			MaxResults: scCfg.MaxResults,
			Enabled:    true,
			Slow:       scCfg.Slow,
		}))
		logger.Info().Msg("registered paper source: Scopus")
	}

	// arXiv.
	if cfg.PaperSources.ArXiv.Enabled {
		axCfg := cfg.PaperSources.ArXiv
		registry.Register(arxiv.New(arxiv.Config{
			BaseURL:    axCfg.BaseURL,
			Timeout:    axCfg.Timeout,
			RateLimit:  axCfg.RateLimit,
			MaxResults: axCfg.MaxResults,
			Enabled:    true,
		}))
		logger.Info().Msg("registered paper source: arXiv")
	}
}
