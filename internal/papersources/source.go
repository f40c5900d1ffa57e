// Package papersources provides interfaces and types for academic paper source clients.
//
// This package defines the foundational abstractions that all paper source
// implementations must follow. Each academic database (OpenAlex, Semantic
// Scholar, PubMed, Scopus, arXiv) implements the PaperSource interface,
// allowing the search orchestrator to fan a topic query out to multiple
// sources concurrently with a unified API.
//
// Adapters only fetch and normalize: they translate one provider's schema,
// pagination, and rate limits into the uniform domain.RawPaper shape. They
// never rank or deduplicate.
//
// Example usage:
//
//	source := openalex.New(cfg)
//	params := papersources.SearchParams{
//		Query:      "transformer attention mechanisms",
//		MaxResults: 25,
//	}
//	result, err := source.Search(ctx, params)
package papersources

import (
	"context"
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
// All fields except Query are optional and support filtering the search results.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// FromYear filters papers published in or after this year.
	// Zero applies no lower bound.
	FromYear int

	// ToYear filters papers published in or before this year.
	// Zero applies no upper bound.
	ToYear int

	// MaxResults limits the number of papers returned in a single request.
	// Sources may have their own maximum limits that override this value.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// Offset specifies the starting position for paginated results.
	Offset int

	// IncludePreprints includes preprint versions of papers when true.
	IncludePreprints bool

	// OpenAccessOnly filters results to only include open access papers.
	OpenAccessOnly bool
}

// SearchResult contains the results from a paper source search operation.
type SearchResult struct {
	// Papers contains the raw papers returned by the search.
	// May be empty if no papers match the search criteria.
	Papers []domain.RawPaper

	// TotalResults is the total number of papers matching the query,
	// regardless of pagination limits. This value is provided by the
	// source API and may be an estimate for large result sets.
	TotalResults int

	// HasMore indicates whether additional results are available
	// beyond the current page.
	HasMore bool

	// Source identifies which paper source provided these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including network latency and response parsing.
	SearchDuration time.Duration
}

// PaperSource defines the interface that all paper source clients must implement.
type PaperSource interface {
	// Search queries the paper source for papers matching the given parameters.
	// The context should be used for cancellation and deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.RawPaper
	//   - Include appropriate error wrapping with source context
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this paper source.
	// Used for attribution, deduplication, and routing.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	// Used for logging, metrics, and display purposes.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled
	// and available for searches. A source may be disabled due to
	// configuration or missing API keys.
	IsEnabled() bool

	// IsSlow marks sources that fast-mode searches skip.
	IsSlow() bool
}
