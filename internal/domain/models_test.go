package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain doi", "10.1038/nature12373", "10.1038/nature12373"},
		{"uppercase doi", "10.1038/NATURE12373", "10.1038/nature12373"},
		{"https prefix", "https://doi.org/10.1038/nature12373", "10.1038/nature12373"},
		{"http prefix", "http://doi.org/10.1038/nature12373", "10.1038/nature12373"},
		{"dx prefix", "https://dx.doi.org/10.1038/nature12373", "10.1038/nature12373"},
		{"doi scheme", "doi:10.1038/nature12373", "10.1038/nature12373"},
		{"surrounding whitespace", "  10.1038/nature12373  ", "10.1038/nature12373"},
		{"empty", "", ""},
		{"not a doi", "arxiv:2301.12345", ""},
		{"bare url", "https://example.com/paper", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDOI(tt.input))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Attention Is All You Need", "attention is all you need"},
		{"strips punctuation", "BERT: Pre-training of Deep Bidirectional Transformers!", "bert pre training of deep bidirectional transformers"},
		{"collapses whitespace", "deep   learning\t methods", "deep learning methods"},
		{"keeps digits", "GPT-4 Technical Report", "gpt 4 technical report"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}
}

func TestGenerateCanonicalID(t *testing.T) {
	t.Run("doi wins over title", func(t *testing.T) {
		id := GenerateCanonicalID("https://doi.org/10.1/ABC", "Some Title", 2020)
		assert.Equal(t, "doi:10.1/abc", id)
	})

	t.Run("title hash is deterministic", func(t *testing.T) {
		a := GenerateCanonicalID("", "Attention Is All You Need", 2017)
		b := GenerateCanonicalID("", "attention is all   you need!", 2017)
		assert.NotEmpty(t, a)
		assert.Equal(t, a, b)
	})

	t.Run("year distinguishes title matches", func(t *testing.T) {
		a := GenerateCanonicalID("", "Survey of Things", 2019)
		b := GenerateCanonicalID("", "Survey of Things", 2020)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty when nothing to key on", func(t *testing.T) {
		assert.Empty(t, GenerateCanonicalID("", "", 2020))
	})
}

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusPoisoned, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusFailed, JobStatusProcessing, true},
		{JobStatusFailed, JobStatusPoisoned, true},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusPoisoned, JobStatusProcessing, false},
		{JobStatusPoisoned, JobStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusPoisoned.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.False(t, JobStatusFailed.IsTerminal())
}

func TestConfidenceAtLeast(t *testing.T) {
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceMedium.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	assert.False(t, Confidence("").AtLeast(ConfidenceLow))
}

func TestAuthorString(t *testing.T) {
	a := Author{Name: "Jane Doe", Affiliation: "MIT", ORCID: "0000-0001-2345-6789"}
	assert.Equal(t, "Jane Doe (MIT) [0000-0001-2345-6789]", a.String())

	b := Author{Name: "John Smith"}
	assert.Equal(t, "John Smith", b.String())
}

func TestIsKnownSource(t *testing.T) {
	assert.True(t, IsKnownSource(SourceTypeOpenAlex))
	assert.True(t, IsKnownSource(SourceTypeArXiv))
	assert.False(t, IsKnownSource(SourceType("crossref")))
}
