package ranking

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// BM25-style constants. k1 controls term-frequency saturation, b controls
// document-length normalization, titleBoost counts title tokens more than
// abstract tokens.
const (
	bm25K1     = 1.2
	bm25B      = 0.75
	titleBoost = 3
)

// LexicalScorer is the default semantic scorer: a BM25-style token overlap
// between the topic and each paper's title and abstract. It needs no
// external service and is fully deterministic.
type LexicalScorer struct{}

// NewLexicalScorer creates a lexical scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

var _ Scorer = (*LexicalScorer)(nil)

// Score implements Scorer. Scores are normalized by the best possible score
// for the topic so a paper matching every topic term at saturation scores
// close to 1.0. Never returns an error.
func (s *LexicalScorer) Score(_ context.Context, topic string, papers []domain.CanonicalPaper) ([]float64, error) {
	scores := make([]float64, len(papers))

	queryTerms := tokenize(topic)
	if len(queryTerms) == 0 || len(papers) == 0 {
		return scores, nil
	}

	docs := make([]map[string]int, len(papers))
	totalLen := 0
	for i := range papers {
		docs[i] = termFrequencies(&papers[i])
		for _, f := range docs[i] {
			totalLen += f
		}
	}
	avgLen := float64(totalLen) / float64(len(papers))
	if avgLen == 0 {
		return scores, nil
	}

	// Document frequency per query term, for IDF.
	df := make(map[string]int, len(queryTerms))
	for _, term := range queryTerms {
		for i := range docs {
			if docs[i][term] > 0 {
				df[term]++
			}
		}
	}

	n := float64(len(papers))
	idf := func(term string) float64 {
		// Plus-one smoothing keeps the IDF positive even for terms
		// present in every document.
		return math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
	}

	// The ceiling a document can reach: every query term at saturation
	// (tf -> inf gives a factor of k1+1).
	best := 0.0
	for _, term := range queryTerms {
		best += idf(term) * (bm25K1 + 1)
	}
	if best == 0 {
		return scores, nil
	}

	for i := range docs {
		docLen := 0
		for _, f := range docs[i] {
			docLen += f
		}
		norm := 1 - bm25B + bm25B*float64(docLen)/avgLen

		score := 0.0
		for _, term := range queryTerms {
			tf := float64(docs[i][term])
			if tf == 0 {
				continue
			}
			score += idf(term) * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
		scores[i] = score / best
	}

	return scores, nil
}

// termFrequencies builds the weighted token counts for one paper.
func termFrequencies(p *domain.CanonicalPaper) map[string]int {
	freq := make(map[string]int)
	for _, tok := range tokenize(p.Title) {
		freq[tok] += titleBoost
	}
	for _, tok := range tokenize(p.Abstract) {
		freq[tok]++
	}
	return freq
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
