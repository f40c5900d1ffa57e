// Package ranking scores and orders canonical papers for a search topic.
//
// The combined score is a weighted sum of three sub-scores, each normalized
// to [0, 1]: semantic relevance to the topic, citation authority, and
// publication recency. The semantic component is pluggable via the Scorer
// interface; the lexical scorer is the default and also serves as the
// fallback when a remote scorer fails.
package ranking

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// DefaultHalfLifeYears is the default recency decay half-life.
const DefaultHalfLifeYears = 10.0

// Weights holds the relative weight of each ranking component. Weights are
// relative, not normalized: callers may pass any non-negative values.
type Weights struct {
	Semantic  float64 `json:"semantic"`
	Authority float64 `json:"authority"`
	Recency   float64 `json:"recency"`
}

// DefaultWeights returns the service-wide default ranking weights.
func DefaultWeights() Weights {
	return Weights{Semantic: 1.0, Authority: 0.5, Recency: 0.1}
}

// IsZero reports whether all weights are unset.
func (w Weights) IsZero() bool {
	return w.Semantic == 0 && w.Authority == 0 && w.Recency == 0
}

// Scorer computes semantic relevance scores in [0, 1] for each paper
// against the topic. The returned slice is index-aligned with papers.
type Scorer interface {
	Score(ctx context.Context, topic string, papers []domain.CanonicalPaper) ([]float64, error)
}

// Engine ranks canonical papers.
type Engine struct {
	scorer        Scorer
	fallback      Scorer
	halfLifeYears float64
	logger        zerolog.Logger
	now           func() time.Time
}

// NewEngine creates a ranking engine. A nil scorer uses the lexical scorer.
// halfLifeYears <= 0 falls back to DefaultHalfLifeYears.
func NewEngine(scorer Scorer, halfLifeYears float64, logger zerolog.Logger) *Engine {
	lexical := NewLexicalScorer()
	if scorer == nil {
		scorer = lexical
	}
	if halfLifeYears <= 0 {
		halfLifeYears = DefaultHalfLifeYears
	}
	return &Engine{
		scorer:        scorer,
		fallback:      lexical,
		halfLifeYears: halfLifeYears,
		logger:        logger.With().Str("component", "ranking").Logger(),
		now:           time.Now,
	}
}

// Rank assigns sub-scores and the combined score to each paper, sorts by
// combined score descending, and truncates to maxResults (0 means no
// truncation). The input slice is not modified.
//
// Ordering is deterministic: ties on combined score fall back to citation
// count descending, then title ascending.
func (e *Engine) Rank(ctx context.Context, papers []domain.CanonicalPaper, topic string, w Weights, maxResults int) []domain.CanonicalPaper {
	if len(papers) == 0 {
		return nil
	}
	if w.IsZero() {
		w = DefaultWeights()
	}

	ranked := make([]domain.CanonicalPaper, len(papers))
	copy(ranked, papers)

	semantic, err := e.scorer.Score(ctx, topic, ranked)
	if err != nil {
		// A failing remote scorer degrades search quality, not
		// availability.
		e.logger.Warn().Err(err).Msg("semantic scorer failed, using lexical fallback")
		semantic, _ = e.fallback.Score(ctx, topic, ranked)
	}

	maxCitations := 0
	for i := range ranked {
		if ranked[i].CitationCount > maxCitations {
			maxCitations = ranked[i].CitationCount
		}
	}

	currentYear := e.now().UTC().Year()

	for i := range ranked {
		p := &ranked[i]
		p.SubScores = domain.SubScores{
			Semantic:  semantic[i],
			Authority: authorityScore(p.CitationCount, maxCitations),
			Recency:   e.recencyScore(p.Year, currentYear),
		}
		p.CombinedScore = w.Semantic*p.SubScores.Semantic +
			w.Authority*p.SubScores.Authority +
			w.Recency*p.SubScores.Recency
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CombinedScore != ranked[j].CombinedScore {
			return ranked[i].CombinedScore > ranked[j].CombinedScore
		}
		if ranked[i].CitationCount != ranked[j].CitationCount {
			return ranked[i].CitationCount > ranked[j].CitationCount
		}
		return ranked[i].Title < ranked[j].Title
	})

	if maxResults > 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked
}

// authorityScore log-scales the citation count and normalizes it by the
// highest count observed in the result set.
func authorityScore(citations, maxCitations int) float64 {
	if citations <= 0 || maxCitations <= 0 {
		return 0
	}
	return math.Log1p(float64(citations)) / math.Log1p(float64(maxCitations))
}

// recencyScore applies exponential half-life decay to the paper's age.
// Papers from the current year (or, due to publisher pre-dating, a future
// year) score 1.0; papers without a year score 0.
func (e *Engine) recencyScore(year, currentYear int) float64 {
	if year <= 0 {
		return 0
	}
	age := float64(currentYear - year)
	if age <= 0 {
		return 1.0
	}
	return math.Pow(0.5, age/e.halfLifeYears)
}
