package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Author represents a paper author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// RawPaper is a provider-native paper record as returned by a single source
// adapter. It exists only for the duration of one search call; the
// deduplicator collapses raw papers into canonical papers.
type RawPaper struct {
	Title         string
	Abstract      string
	Year          int
	Venue         string
	DOI           string
	URL           string
	PDFURL        string
	Authors       []Author
	CitationCount int
	OpenAccess    bool
	Preprint      bool
	Source        SourceType
}

// SubScores holds the normalized ranking sub-scores for a canonical paper.
// Each component is in [0, 1] before weighting.
type SubScores struct {
	Semantic  float64 `json:"semantic"`
	Authority float64 `json:"authority"`
	Recency   float64 `json:"recency"`
}

// CanonicalPaper is a deduplicated, scored representation of one academic
// work across all contributing sources. It is immutable once returned from
// a search; ingestion copies it into an IngestedPaper rather than mutating it.
type CanonicalPaper struct {
	CanonicalID   string       `json:"canonical_id"`
	Title         string       `json:"title"`
	Abstract      string       `json:"abstract,omitempty"`
	Year          int          `json:"year"`
	Venue         string       `json:"venue,omitempty"`
	DOI           string       `json:"doi,omitempty"`
	URL           string       `json:"url,omitempty"`
	PDFURL        string       `json:"pdf_url,omitempty"`
	Authors       []Author     `json:"authors"`
	CitationCount int          `json:"citation_count"`
	OpenAccess    bool         `json:"open_access"`
	Preprint      bool         `json:"preprint"`
	Sources       []SourceType `json:"sources"`
	SubScores     SubScores    `json:"sub_scores"`
	CombinedScore float64      `json:"combined_score"`
}

// HasSource reports whether the given source contributed to this paper.
func (p *CanonicalPaper) HasSource(s SourceType) bool {
	for _, src := range p.Sources {
		if src == s {
			return true
		}
	}
	return false
}

// doiURLPrefixes are the URL wrappers commonly found around DOIs in
// provider responses.
var doiURLPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// NormalizeDOI strips URL prefixes and lowercases a DOI so that the same
// work carries the same DOI regardless of which provider reported it.
// Returns empty string for inputs that do not look like a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range doiURLPrefixes {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	doi = strings.ToLower(strings.TrimSpace(doi))
	// All DOIs start with the "10." registrant prefix.
	if !strings.HasPrefix(doi, "10.") {
		return ""
	}
	return doi
}

// NormalizeTitle lowercases a title, strips punctuation, and collapses
// whitespace. Used for both title-based dedup matching and canonical ID
// derivation when no DOI is available.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))

	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || r == '-':
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
		// Other punctuation is dropped entirely.
	}

	return strings.TrimSpace(sb.String())
}

// GenerateCanonicalID derives a stable identifier for a paper.
// A normalized DOI takes priority; otherwise the ID is a hash of the
// normalized title and publication year. The result is deterministic
// across repeated searches for the same underlying work.
// Returns empty string when neither a DOI nor a title is available.
func GenerateCanonicalID(doi, title string, year int) string {
	if d := NormalizeDOI(doi); d != "" {
		return "doi:" + d
	}

	t := NormalizeTitle(title)
	if t == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", t, year)))
	return "ty:" + hex.EncodeToString(sum[:16])
}

// NaturalKey returns the ingestion idempotency key for a paper: the
// normalized DOI when present, else the title+year canonical hash.
func NaturalKey(doi, title string, year int) string {
	return GenerateCanonicalID(doi, title, year)
}
