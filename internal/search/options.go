package search

import (
	"strings"

	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/ranking"
)

// Options control a single search request. The zero value is valid: every
// unset field falls back to a configured default before the fan-out starts.
type Options struct {
	// Sources restricts the fan-out to the given source types. Empty means
	// the configured default subset.
	Sources []domain.SourceType

	// MaxResults is the number of ranked papers to return. Zero means the
	// configured default; values above the configured cap are rejected.
	MaxResults int

	// FromYear and ToYear bound the publication year range. Zero means
	// unbounded on that side.
	FromYear int
	ToYear   int

	// IncludePreprints includes preprint records in the results.
	IncludePreprints bool

	// OpenAccessOnly restricts results to open-access papers.
	OpenAccessOnly bool

	// Weights override the ranking weights. Zero means defaults.
	Weights ranking.Weights

	// FastMode shortens the global deadline and skips sources marked slow.
	FastMode bool
}

// applyDefaults fills unset option fields from the search configuration and
// validates the result. A non-nil error always unwraps to
// domain.ErrInvalidOptions.
func applyDefaults(topic string, opts Options, cfg config.SearchConfig) (Options, error) {
	if strings.TrimSpace(topic) == "" {
		return opts, invalidOptions("topic", "must not be empty")
	}

	if opts.MaxResults == 0 {
		opts.MaxResults = cfg.DefaultMaxResults
	}
	if opts.MaxResults < 0 {
		return opts, invalidOptions("max_results", "must not be negative")
	}
	if opts.MaxResults > cfg.MaxResultsCap {
		return opts, invalidOptionsf("max_results", "must not exceed %d", cfg.MaxResultsCap)
	}

	if opts.FromYear < 0 || opts.ToYear < 0 {
		return opts, invalidOptions("year_range", "years must not be negative")
	}
	if opts.FromYear > 0 && opts.ToYear > 0 && opts.FromYear > opts.ToYear {
		return opts, invalidOptions("year_range", "from_year must not exceed to_year")
	}

	if len(opts.Sources) == 0 {
		opts.Sources = make([]domain.SourceType, 0, len(cfg.DefaultSources))
		for _, name := range cfg.DefaultSources {
			opts.Sources = append(opts.Sources, domain.SourceType(name))
		}
	}
	for _, s := range opts.Sources {
		if !domain.IsKnownSource(s) {
			return opts, invalidOptionsf("sources", "unknown source %q", string(s))
		}
	}

	if opts.Weights.IsZero() {
		opts.Weights = ranking.DefaultWeights()
	}
	if opts.Weights.Semantic < 0 || opts.Weights.Authority < 0 || opts.Weights.Recency < 0 {
		return opts, invalidOptions("weights", "must not be negative")
	}

	return opts, nil
}
