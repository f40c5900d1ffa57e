package search

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/cache"
	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/dedup"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/papersources"
	"github.com/helixir/paper-discovery-service/internal/ranking"
)

// Response is the outcome of one search request.
type Response struct {
	// Papers holds the ranked, deduplicated results.
	Papers []domain.CanonicalPaper `json:"papers"`

	// Cached reports whether the response was served from the result cache.
	Cached bool `json:"cached"`

	// SearchTimeMs is the end-to-end duration of the request in milliseconds.
	SearchTimeMs int64 `json:"search_time_ms"`
}

// Service orchestrates the search pipeline: cache lookup, concurrent source
// fan-out, deduplication, ranking, and a best-effort cache write-through.
type Service struct {
	registry *papersources.Registry
	deduper  *dedup.Deduper
	engine   *ranking.Engine
	cache    *cache.Cache
	metrics  *observability.Metrics
	logger   zerolog.Logger
	cfg      config.SearchConfig
}

// NewService creates a search service. The cache may be nil, in which case
// every request goes to the sources.
func NewService(
	registry *papersources.Registry,
	deduper *dedup.Deduper,
	engine *ranking.Engine,
	resultCache *cache.Cache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg config.SearchConfig,
) *Service {
	return &Service{
		registry: registry,
		deduper:  deduper,
		engine:   engine,
		cache:    resultCache,
		metrics:  metrics,
		logger:   logger.With().Str("component", "search").Logger(),
		cfg:      cfg,
	}
}

// Search runs the full pipeline for one topic. Partial source failures are
// tolerated; the request only fails when no source contributes before the
// global deadline, in which case the error unwraps to
// domain.ErrSearchUnavailable.
func (s *Service) Search(ctx context.Context, topic string, opts Options) (*Response, error) {
	opts, err := applyDefaults(topic, opts, s.cfg)
	if err != nil {
		return nil, err
	}

	s.metrics.SearchesStarted.Inc()
	start := time.Now()

	cacheParams := cache.Params{
		Topic:            topic,
		Sources:          opts.Sources,
		MaxResults:       opts.MaxResults,
		IncludePreprints: opts.IncludePreprints,
		OpenAccessOnly:   opts.OpenAccessOnly,
		FromYear:         opts.FromYear,
		ToYear:           opts.ToYear,
		Weights:          opts.Weights,
	}
	if s.cache != nil {
		if papers, ok := s.cache.Lookup(ctx, cacheParams); ok {
			s.metrics.CacheHits.Inc()
			s.metrics.SearchesCompleted.Inc()
			return &Response{
				Papers:       papers,
				Cached:       true,
				SearchTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
		s.metrics.CacheMisses.Inc()
	}

	sources := s.selectSources(opts)
	if len(sources) == 0 {
		s.metrics.SearchesUnavailable.Inc()
		s.logger.Warn().Str("topic", topic).Msg("no enabled sources for search")
		return nil, domain.ErrSearchUnavailable
	}

	globalTimeout := s.cfg.GlobalTimeout
	if opts.FastMode {
		globalTimeout = s.cfg.FastTimeout
	}
	searchCtx, cancel := context.WithTimeout(ctx, globalTimeout)
	defer cancel()

	params := papersources.SearchParams{
		Query:            topic,
		FromYear:         opts.FromYear,
		ToYear:           opts.ToYear,
		MaxResults:       opts.MaxResults,
		IncludePreprints: opts.IncludePreprints,
		OpenAccessOnly:   opts.OpenAccessOnly,
	}

	raw, contributed := s.collect(searchCtx, params, sources)
	if contributed == 0 {
		s.metrics.SearchesUnavailable.Inc()
		s.logger.Error().
			Str("topic", topic).
			Int("sources", len(sources)).
			Msg("no source contributed before the deadline")
		return nil, domain.ErrSearchUnavailable
	}

	papers, stats := s.deduper.DedupWithStats(raw)
	s.metrics.DedupMerges.WithLabelValues("doi").Add(float64(stats.DOIMerges))
	s.metrics.DedupMerges.WithLabelValues("title_year").Add(float64(stats.TitleYearMerges))

	papers = s.engine.Rank(ctx, papers, topic, opts.Weights, opts.MaxResults)

	if s.cache != nil {
		s.cache.Save(ctx, cacheParams, papers)
	}

	elapsed := time.Since(start)
	s.metrics.SearchesCompleted.Inc()
	s.metrics.SearchDuration.Observe(elapsed.Seconds())
	s.logger.Info().
		Str("topic", topic).
		Int("raw_papers", len(raw)).
		Int("ranked_papers", len(papers)).
		Int("sources_contributed", contributed).
		Dur("duration", elapsed).
		Msg("search completed")

	return &Response{
		Papers:       papers,
		Cached:       false,
		SearchTimeMs: elapsed.Milliseconds(),
	}, nil
}

// selectSources resolves the requested source types against the registry and
// drops slow adapters under fast mode.
func (s *Service) selectSources(opts Options) []papersources.PaperSource {
	sources := s.registry.Resolve(opts.Sources)
	if !opts.FastMode {
		return sources
	}

	fast := sources[:0]
	for _, src := range sources {
		if src.IsSlow() {
			s.logger.Debug().Str("source", src.Name()).Msg("skipping slow source in fast mode")
			continue
		}
		fast = append(fast, src)
	}
	return fast
}

// collect drains the fan-out channel until every source reports or the
// context deadline fires, whichever comes first. It returns the raw papers
// gathered and the number of sources that responded successfully. Late
// results land in the stream's buffer and are discarded.
func (s *Service) collect(ctx context.Context, params papersources.SearchParams, sources []papersources.PaperSource) ([]domain.RawPaper, int) {
	stream := s.registry.SearchStream(ctx, params, sources, s.cfg.AdapterTimeout)

	var raw []domain.RawPaper
	contributed := 0
	for pending := len(sources); pending > 0; pending-- {
		select {
		case res := <-stream:
			s.recordSourceResult(res)
			if res.Error != nil {
				continue
			}
			raw = append(raw, res.Result.Papers...)
			contributed++
		case <-ctx.Done():
			s.logger.Warn().
				Int("pending", pending).
				Msg("global search deadline reached, abandoning pending sources")
			return raw, contributed
		}
	}
	return raw, contributed
}

func (s *Service) recordSourceResult(res papersources.SourceResult) {
	label := string(res.Source)
	s.metrics.SourceSearches.WithLabelValues(label).Inc()

	if res.Error != nil {
		reason := "error"
		if errors.Is(res.Error, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(res.Error, domain.ErrRateLimited) {
			reason = "rate_limited"
		}
		s.metrics.SourceFailures.WithLabelValues(label, reason).Inc()
		s.logger.Warn().
			Err(res.Error).
			Str("source", label).
			Str("reason", reason).
			Msg("source search failed")
		return
	}

	s.metrics.SourceDuration.WithLabelValues(label).Observe(res.Result.SearchDuration.Seconds())
	s.metrics.PapersPerSource.WithLabelValues(label).Observe(float64(len(res.Result.Papers)))
}
