// Package observability provides logging, metrics, and context propagation
// support for the paper discovery service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for searches, sources, dedup, cache, and PDF jobs
//   - Context helpers for propagating request identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("topic", topic).Msg("search started")
//
// # Metrics
//
// Initialize metrics once at startup:
//
//	metrics := observability.NewMetrics("paper_discovery")
//
// Record metrics:
//
//	metrics.SearchesStarted.Inc()
//	metrics.SourceSearches.WithLabelValues("openalex").Inc()
package observability
