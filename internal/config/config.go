// Package config provides configuration management for the paper discovery service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper discovery service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Search contains search orchestrator settings.
	Search SearchConfig `mapstructure:"search"`
	// Ranking contains default ranking weights and decay settings.
	Ranking RankingConfig `mapstructure:"ranking"`
	// Cache contains result cache window settings.
	Cache CacheConfig `mapstructure:"cache"`
	// PDFQueue contains PDF acquisition queue settings.
	PDFQueue PDFQueueConfig `mapstructure:"pdf_queue"`
	// Extraction contains extraction toolchain endpoints.
	Extraction ExtractionConfig `mapstructure:"extraction"`
	// Embedding contains the external embedding service settings.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	// Kafka contains Kafka publisher settings for job status events.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// PaperSources contains paper source API configurations.
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// SearchConfig holds search orchestrator settings.
type SearchConfig struct {
	// GlobalTimeout bounds the whole fan-out for a normal search.
	GlobalTimeout time.Duration `mapstructure:"global_timeout"`
	// FastTimeout bounds the fan-out when fast mode is requested.
	FastTimeout time.Duration `mapstructure:"fast_timeout"`
	// AdapterTimeout bounds each individual source call.
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`
	// DefaultMaxResults is the result count when the caller does not specify one.
	DefaultMaxResults int `mapstructure:"default_max_results"`
	// MaxResultsCap is the hard cap on requested result counts.
	MaxResultsCap int `mapstructure:"max_results_cap"`
	// DefaultSources is the curated source subset used when the caller does
	// not name sources explicitly.
	DefaultSources []string `mapstructure:"default_sources"`
}

// RankingConfig holds default ranking weights and recency decay settings.
type RankingConfig struct {
	// SemanticWeight is the default weight of the semantic sub-score.
	SemanticWeight float64 `mapstructure:"semantic_weight"`
	// AuthorityWeight is the default weight of the authority sub-score.
	AuthorityWeight float64 `mapstructure:"authority_weight"`
	// RecencyWeight is the default weight of the recency sub-score.
	RecencyWeight float64 `mapstructure:"recency_weight"`
	// RecencyHalfLifeYears is the half-life of the recency decay in years.
	RecencyHalfLifeYears float64 `mapstructure:"recency_half_life_years"`
}

// CacheConfig holds result cache window settings.
type CacheConfig struct {
	// FreshnessWindow gates whether a cache entry may be served as a hit.
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	// ExpiryWindow is the hard TTL enforced by the store.
	ExpiryWindow time.Duration `mapstructure:"expiry_window"`
}

// PDFQueueConfig holds PDF acquisition queue settings.
type PDFQueueConfig struct {
	// Workers is the fixed concurrency bound of the worker pool.
	Workers int `mapstructure:"workers"`
	// MaxAttempts is the retry budget before a job is poisoned.
	MaxAttempts int `mapstructure:"max_attempts"`
	// PollInterval is how often idle workers poll for claimable jobs.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MinConfidence is the minimum extraction confidence accepted from the
	// fallback chain (high, medium, low).
	MinConfidence string `mapstructure:"min_confidence"`
	// DownloadTimeout bounds a single PDF download.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// MaxPDFSizeBytes is the maximum accepted PDF size.
	MaxPDFSizeBytes int64 `mapstructure:"max_pdf_size_bytes"`
}

// ExtractionConfig holds endpoints for the PDF text extraction toolchain.
type ExtractionConfig struct {
	// OpenAccessBaseURL is the DOI open-access lookup endpoint (Unpaywall-compatible).
	OpenAccessBaseURL string `mapstructure:"open_access_base_url"`
	// OpenAccessEmail is the contact email required by the open-access API.
	OpenAccessEmail string `mapstructure:"open_access_email"`
	// StructuredParserURL is the GROBID-class structured parser endpoint.
	StructuredParserURL string `mapstructure:"structured_parser_url"`
	// OCRServiceURL is the OCR service endpoint, the last-resort strategy.
	OCRServiceURL string `mapstructure:"ocr_service_url"`
	// Timeout bounds a single extraction strategy call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig holds settings for the external text embedding service
// used by the optional embedding-based semantic scorer.
type EmbeddingConfig struct {
	// Enabled selects the embedding scorer instead of the lexical scorer.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the embedding service endpoint.
	BaseURL string `mapstructure:"base_url"`
	// Model is the embedding model identifier.
	Model string `mapstructure:"model"`
	// Timeout bounds a single embedding call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds Kafka publisher settings for job status events.
type KafkaConfig struct {
	// Enabled controls whether job status events are mirrored to Kafka.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish job status events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// PaperSourcesConfig holds configuration for all paper source APIs.
type PaperSourcesConfig struct {
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex PaperSourceConfig `mapstructure:"openalex"`
	// Scopus contains Scopus API settings.
	Scopus PaperSourceConfig `mapstructure:"scopus"`
	// PubMed contains PubMed API settings.
	PubMed PaperSourceConfig `mapstructure:"pubmed"`
	// ArXiv contains arXiv API settings.
	ArXiv PaperSourceConfig `mapstructure:"arxiv"`
}

// PaperSourceConfig holds configuration for a single paper source API.
type PaperSourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g.
	// PAPERDISC_PAPER_SOURCES_SCOPUS_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
	// Slow marks a source that fast mode skips.
	Slow bool `mapstructure:"slow"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAPERDISC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-discovery-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv("PAPERDISC_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.PaperSources.OpenAlex.APIKey = os.Getenv("PAPERDISC_PAPER_SOURCES_OPENALEX_API_KEY")
	cfg.PaperSources.Scopus.APIKey = os.Getenv("PAPERDISC_PAPER_SOURCES_SCOPUS_API_KEY")
	cfg.PaperSources.PubMed.APIKey = os.Getenv("PAPERDISC_PAPER_SOURCES_PUBMED_API_KEY")
	cfg.PaperSources.ArXiv.APIKey = os.Getenv("PAPERDISC_PAPER_SOURCES_ARXIV_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paperdisc")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_discovery_service")
	// Default to "require" for production security. Use PAPERDISC_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Search defaults
	v.SetDefault("search.global_timeout", "20s")
	v.SetDefault("search.fast_timeout", "6s")
	v.SetDefault("search.adapter_timeout", "15s")
	v.SetDefault("search.default_max_results", 25)
	v.SetDefault("search.max_results_cap", 100)
	v.SetDefault("search.default_sources", []string{"openalex", "semantic_scholar", "arxiv"})

	// Ranking defaults: semantic relevance dominates.
	v.SetDefault("ranking.semantic_weight", 1.0)
	v.SetDefault("ranking.authority_weight", 0.5)
	v.SetDefault("ranking.recency_weight", 0.1)
	v.SetDefault("ranking.recency_half_life_years", 10.0)

	// Cache defaults
	v.SetDefault("cache.freshness_window", "24h")
	v.SetDefault("cache.expiry_window", "48h")

	// PDF queue defaults
	v.SetDefault("pdf_queue.workers", 3)
	v.SetDefault("pdf_queue.max_attempts", 3)
	v.SetDefault("pdf_queue.poll_interval", "2s")
	v.SetDefault("pdf_queue.min_confidence", "medium")
	v.SetDefault("pdf_queue.download_timeout", "60s")
	v.SetDefault("pdf_queue.max_pdf_size_bytes", 100*1024*1024)

	// Extraction defaults
	v.SetDefault("extraction.open_access_base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("extraction.open_access_email", "")
	v.SetDefault("extraction.structured_parser_url", "http://localhost:8070")
	v.SetDefault("extraction.ocr_service_url", "")
	v.SetDefault("extraction.timeout", "90s")

	// Embedding defaults
	v.SetDefault("embedding.enabled", false)
	v.SetDefault("embedding.base_url", "http://localhost:8090")
	v.SetDefault("embedding.model", "all-minilm-l6-v2")
	v.SetDefault("embedding.timeout", "10s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.pdf_jobs.paper_discovery_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Paper source defaults
	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_limit", 1)
	v.SetDefault("paper_sources.semantic_scholar.max_results", 100)
	v.SetDefault("paper_sources.semantic_scholar.slow", false)

	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.timeout", "30s")
	v.SetDefault("paper_sources.openalex.rate_limit", 10)
	v.SetDefault("paper_sources.openalex.max_results", 200)
	v.SetDefault("paper_sources.openalex.slow", false)

	v.SetDefault("paper_sources.scopus.enabled", false)
	v.SetDefault("paper_sources.scopus.base_url", "https://api.elsevier.com/content/search/scopus")
	v.SetDefault("paper_sources.scopus.timeout", "30s")
	v.SetDefault("paper_sources.scopus.rate_limit", 5)
	v.SetDefault("paper_sources.scopus.max_results", 25)
	v.SetDefault("paper_sources.scopus.slow", true)

	v.SetDefault("paper_sources.pubmed.enabled", true)
	v.SetDefault("paper_sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("paper_sources.pubmed.timeout", "30s")
	v.SetDefault("paper_sources.pubmed.rate_limit", 3)
	v.SetDefault("paper_sources.pubmed.max_results", 100)
	v.SetDefault("paper_sources.pubmed.slow", true)

	v.SetDefault("paper_sources.arxiv.enabled", true)
	v.SetDefault("paper_sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("paper_sources.arxiv.timeout", "30s")
	v.SetDefault("paper_sources.arxiv.rate_limit", 3)
	v.SetDefault("paper_sources.arxiv.max_results", 100)
	v.SetDefault("paper_sources.arxiv.slow", false)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	switch c.Database.SSLMode {
	case SSLModeDisable, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
	default:
		return fmt.Errorf("invalid database ssl_mode: %q", c.Database.SSLMode)
	}

	if c.Search.GlobalTimeout <= 0 {
		return fmt.Errorf("search global_timeout must be positive")
	}
	if c.Search.FastTimeout <= 0 || c.Search.FastTimeout > c.Search.GlobalTimeout {
		return fmt.Errorf("search fast_timeout must be positive and not exceed global_timeout")
	}
	if c.Search.MaxResultsCap <= 0 {
		return fmt.Errorf("search max_results_cap must be positive")
	}
	if c.Search.DefaultMaxResults <= 0 || c.Search.DefaultMaxResults > c.Search.MaxResultsCap {
		return fmt.Errorf("search default_max_results must be in (0, %d]", c.Search.MaxResultsCap)
	}

	if c.Ranking.SemanticWeight < 0 || c.Ranking.AuthorityWeight < 0 || c.Ranking.RecencyWeight < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	if c.Ranking.RecencyHalfLifeYears <= 0 {
		return fmt.Errorf("ranking recency_half_life_years must be positive")
	}

	if c.Cache.FreshnessWindow <= 0 {
		return fmt.Errorf("cache freshness_window must be positive")
	}
	if c.Cache.ExpiryWindow < c.Cache.FreshnessWindow {
		return fmt.Errorf("cache expiry_window must be at least freshness_window")
	}

	if c.PDFQueue.Workers <= 0 {
		return fmt.Errorf("pdf_queue workers must be positive")
	}
	if c.PDFQueue.MaxAttempts <= 0 {
		return fmt.Errorf("pdf_queue max_attempts must be positive")
	}
	switch c.PDFQueue.MinConfidence {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("invalid pdf_queue min_confidence: %q", c.PDFQueue.MinConfidence)
	}

	for _, name := range c.Search.DefaultSources {
		if !knownSourceName(name) {
			return fmt.Errorf("unknown source in search.default_sources: %q", name)
		}
	}

	return nil
}

// knownSourceName reports whether name matches a configured source type.
func knownSourceName(name string) bool {
	switch name {
	case "semantic_scholar", "openalex", "scopus", "pubmed", "arxiv":
		return true
	default:
		return false
	}
}
