// Package dedup merges raw papers from multiple sources into canonical
// papers. Matching is by normalized DOI first, then by normalized title plus
// publication year. Field conflicts between sources are settled by a
// configurable source precedence order.
package dedup

import (
	"strconv"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// Deduper merges raw papers into canonical papers.
type Deduper struct {
	// rank maps each source to its precedence position. Lower is more
	// authoritative. Sources missing from the map rank last.
	rank map[domain.SourceType]int
}

// New creates a Deduper with the given source precedence order. An empty
// precedence list falls back to domain.KnownSources.
func New(precedence ...domain.SourceType) *Deduper {
	if len(precedence) == 0 {
		precedence = domain.KnownSources
	}
	rank := make(map[domain.SourceType]int, len(precedence))
	for i, s := range precedence {
		rank[s] = i
	}
	return &Deduper{rank: rank}
}

// entry tracks a canonical paper under construction together with the most
// authoritative source seen so far for its scalar fields.
type entry struct {
	paper      domain.CanonicalPaper
	scalarRank int
}

// Stats counts the merges performed during one Dedup call, by match kind.
type Stats struct {
	DOIMerges       int
	TitleYearMerges int
	Dropped         int
}

// Dedup merges the given raw papers into canonical papers, preserving the
// first-seen order of distinct works. Papers with neither a usable DOI nor
// a normalizable title are dropped. The operation is idempotent: feeding
// the merged output back through (as single-source raw papers) yields the
// same set of canonical IDs.
func (d *Deduper) Dedup(raw []domain.RawPaper) []domain.CanonicalPaper {
	out, _ := d.DedupWithStats(raw)
	return out
}

// DedupWithStats is Dedup plus per-call merge counters.
func (d *Deduper) DedupWithStats(raw []domain.RawPaper) ([]domain.CanonicalPaper, Stats) {
	entries := make([]*entry, 0, len(raw))
	byDOI := make(map[string]*entry)
	byTitleYear := make(map[string]*entry)
	var stats Stats

	for i := range raw {
		rp := &raw[i]

		doi := domain.NormalizeDOI(rp.DOI)
		titleKey := titleYearKey(rp.Title, rp.Year)
		if doi == "" && titleKey == "" {
			stats.Dropped++
			continue
		}

		var e *entry
		if doi != "" {
			e = byDOI[doi]
		}
		if e != nil {
			stats.DOIMerges++
		} else if titleKey != "" {
			if e = byTitleYear[titleKey]; e != nil {
				stats.TitleYearMerges++
			}
		}

		if e == nil {
			e = &entry{
				paper:      newCanonical(rp, doi),
				scalarRank: d.sourceRank(rp.Source),
			}
			entries = append(entries, e)
		} else {
			d.merge(e, rp, doi)
		}

		// Register both keys so a DOI-bearing record and a DOI-less
		// record of the same work land in the same entry regardless
		// of arrival order.
		if doi != "" {
			byDOI[doi] = e
		}
		if titleKey != "" {
			if _, taken := byTitleYear[titleKey]; !taken {
				byTitleYear[titleKey] = e
			}
		}
	}

	out := make([]domain.CanonicalPaper, len(entries))
	for i, e := range entries {
		out[i] = e.paper
	}
	return out, stats
}

// newCanonical starts a canonical paper from its first contributing record.
func newCanonical(rp *domain.RawPaper, doi string) domain.CanonicalPaper {
	return domain.CanonicalPaper{
		CanonicalID:   domain.GenerateCanonicalID(doi, rp.Title, rp.Year),
		Title:         rp.Title,
		Abstract:      rp.Abstract,
		Year:          rp.Year,
		Venue:         rp.Venue,
		DOI:           doi,
		URL:           rp.URL,
		PDFURL:        rp.PDFURL,
		Authors:       rp.Authors,
		CitationCount: rp.CitationCount,
		OpenAccess:    rp.OpenAccess,
		Preprint:      rp.Preprint,
		Sources:       []domain.SourceType{rp.Source},
	}
}

// merge folds a raw paper into an existing entry.
//
// Accumulating fields take the best value regardless of source: max citation
// count, longer abstract, any open-access signal, published-anywhere beats
// preprint. Scalar fields (title, year, URL, authors) follow source
// precedence: a more authoritative source overwrites them.
func (d *Deduper) merge(e *entry, rp *domain.RawPaper, doi string) {
	p := &e.paper

	if !p.HasSource(rp.Source) {
		p.Sources = append(p.Sources, rp.Source)
	}

	if rp.CitationCount > p.CitationCount {
		p.CitationCount = rp.CitationCount
	}
	if len(rp.Abstract) > len(p.Abstract) {
		p.Abstract = rp.Abstract
	}
	if rp.OpenAccess {
		p.OpenAccess = true
	}
	if !rp.Preprint {
		p.Preprint = false
	}
	if p.PDFURL == "" && rp.PDFURL != "" {
		p.PDFURL = rp.PDFURL
	}
	// The longer venue string is usually the expanded journal name rather
	// than an abbreviation.
	if len(rp.Venue) > len(p.Venue) {
		p.Venue = rp.Venue
	}

	// A DOI seen from any source upgrades the canonical identity.
	if p.DOI == "" && doi != "" {
		p.DOI = doi
		p.CanonicalID = domain.GenerateCanonicalID(doi, p.Title, p.Year)
	}

	newRank := d.sourceRank(rp.Source)
	if newRank < e.scalarRank {
		e.scalarRank = newRank
		p.Title = rp.Title
		if rp.Year != 0 {
			p.Year = rp.Year
		}
		if rp.URL != "" {
			p.URL = rp.URL
		}
		if len(rp.Authors) > 0 {
			p.Authors = pickAuthors(rp.Authors, p.Authors)
		}
	} else {
		if p.URL == "" {
			p.URL = rp.URL
		}
		if len(p.Authors) == 0 {
			p.Authors = rp.Authors
		}
	}
}

// pickAuthors chooses between a preferred author list and the incumbent.
// When the two lists describe the same people, the more complete one wins;
// otherwise the preferred list is trusted as-is.
func pickAuthors(preferred, incumbent []domain.Author) []domain.Author {
	if len(incumbent) > len(preferred) && AuthorOverlap(preferred, incumbent) >= 0.5 {
		return incumbent
	}
	return preferred
}

func (d *Deduper) sourceRank(s domain.SourceType) int {
	if r, ok := d.rank[s]; ok {
		return r
	}
	return len(d.rank)
}

// titleYearKey builds the fallback dedup key from a normalized title and
// year. Empty when the title normalizes to nothing.
func titleYearKey(title string, year int) string {
	t := domain.NormalizeTitle(title)
	if t == "" {
		return ""
	}
	return t + "|" + strconv.Itoa(year)
}
