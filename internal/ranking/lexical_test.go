package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

func TestLexicalScorerRelevanceOrdering(t *testing.T) {
	papers := []domain.CanonicalPaper{
		{Title: "Attention mechanisms in transformer models", Abstract: "We survey attention in transformers."},
		{Title: "Attention in psychology", Abstract: "Cognitive attention studies."},
		{Title: "Crop rotation strategies", Abstract: "Agricultural planning."},
	}

	scores, err := NewLexicalScorer().Score(context.Background(), "transformer attention", papers)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Greater(t, scores[0], scores[1], "full topic match should beat partial")
	assert.Greater(t, scores[1], scores[2], "partial match should beat no match")
	assert.Zero(t, scores[2])
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestLexicalScorerEmptyTopic(t *testing.T) {
	papers := []domain.CanonicalPaper{{Title: "Anything"}}

	scores, err := NewLexicalScorer().Score(context.Background(), "", papers)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, scores)
}

func TestLexicalScorerDeterministic(t *testing.T) {
	papers := []domain.CanonicalPaper{
		{Title: "Graph neural networks", Abstract: "Message passing on graphs."},
		{Title: "Neural architecture search"},
	}

	s := NewLexicalScorer()
	first, err := s.Score(context.Background(), "neural networks", papers)
	require.NoError(t, err)
	second, err := s.Score(context.Background(), "neural networks", papers)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"graph", "neural", "networks"}, tokenize("Graph-Neural: networks!"))
	assert.Empty(t, tokenize("a b c"))
	assert.Empty(t, tokenize(""))
}
