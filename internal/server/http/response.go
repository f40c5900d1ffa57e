package httpserver

import (
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// Response types for JSON serialization.

type searchResponse struct {
	Papers       []canonicalPaperResponse `json:"papers"`
	TotalResults int                      `json:"total_results"`
	Cached       bool                     `json:"cached"`
	SearchTimeMs int64                    `json:"search_time_ms"`
}

type canonicalPaperResponse struct {
	CanonicalID   string           `json:"canonical_id"`
	Title         string           `json:"title"`
	Abstract      string           `json:"abstract,omitempty"`
	Year          int              `json:"year,omitempty"`
	Venue         string           `json:"venue,omitempty"`
	DOI           string           `json:"doi,omitempty"`
	URL           string           `json:"url,omitempty"`
	PdfURL        string           `json:"pdf_url,omitempty"`
	Authors       []authorResponse `json:"authors,omitempty"`
	CitationCount int              `json:"citation_count"`
	OpenAccess    bool             `json:"open_access"`
	Preprint      bool             `json:"preprint"`
	Sources       []string         `json:"sources"`
	Score         scoreResponse    `json:"score"`
}

type scoreResponse struct {
	Combined  float64 `json:"combined"`
	Semantic  float64 `json:"semantic"`
	Authority float64 `json:"authority"`
	Recency   float64 `json:"recency"`
}

type authorResponse struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

type ingestResponse struct {
	PaperID   string  `json:"paper_id"`
	Duplicate bool    `json:"duplicate"`
	JobID     *string `json:"pdf_job_id,omitempty"`
}

type ingestedPaperResponse struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Abstract      string               `json:"abstract,omitempty"`
	Year          int                  `json:"year"`
	Venue         string               `json:"venue,omitempty"`
	DOI           string               `json:"doi,omitempty"`
	URL           string               `json:"url,omitempty"`
	Authors       []authorResponse     `json:"authors,omitempty"`
	CitationCount int                  `json:"citation_count"`
	Sources       []string             `json:"sources"`
	Fidelity      string               `json:"fidelity"`
	PDF           *pdfMetadataResponse `json:"pdf,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type pdfMetadataResponse struct {
	URL              string    `json:"url"`
	ExtractionMethod string    `json:"extraction_method"`
	Confidence       string    `json:"confidence"`
	DownloadedAt     time.Time `json:"downloaded_at"`
	SizeBytes        int64     `json:"size_bytes"`
}

type listPapersResponse struct {
	Papers        []ingestedPaperResponse `json:"papers"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
	TotalCount    int                     `json:"total_count"`
}

type chunkResponse struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Section string `json:"section,omitempty"`
}

type listChunksResponse struct {
	PaperID string          `json:"paper_id"`
	Chunks  []chunkResponse `json:"chunks"`
}

type jobResponse struct {
	ID         string    `json:"id"`
	PaperID    string    `json:"paper_id"`
	PdfURL     string    `json:"pdf_url"`
	Title      string    `json:"title,omitempty"`
	Priority   string    `json:"priority"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	Method     string    `json:"extraction_method,omitempty"`
	Confidence string    `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type listJobsResponse struct {
	PaperID string        `json:"paper_id"`
	Jobs    []jobResponse `json:"jobs"`
}

// Converter functions

func domainAuthorsToResponse(authors []domain.Author) []authorResponse {
	if len(authors) == 0 {
		return nil
	}
	resp := make([]authorResponse, len(authors))
	for i, a := range authors {
		resp[i] = authorResponse{Name: a.Name, Affiliation: a.Affiliation, ORCID: a.ORCID}
	}
	return resp
}

func sourcesToStrings(sources []domain.SourceType) []string {
	resp := make([]string, len(sources))
	for i, s := range sources {
		resp[i] = string(s)
	}
	return resp
}

func canonicalPaperToResponse(p domain.CanonicalPaper) canonicalPaperResponse {
	return canonicalPaperResponse{
		CanonicalID:   p.CanonicalID,
		Title:         p.Title,
		Abstract:      p.Abstract,
		Year:          p.Year,
		Venue:         p.Venue,
		DOI:           p.DOI,
		URL:           p.URL,
		PdfURL:        p.PDFURL,
		Authors:       domainAuthorsToResponse(p.Authors),
		CitationCount: p.CitationCount,
		OpenAccess:    p.OpenAccess,
		Preprint:      p.Preprint,
		Sources:       sourcesToStrings(p.Sources),
		Score: scoreResponse{
			Combined:  p.CombinedScore,
			Semantic:  p.SubScores.Semantic,
			Authority: p.SubScores.Authority,
			Recency:   p.SubScores.Recency,
		},
	}
}

func ingestedPaperToResponse(p *domain.IngestedPaper) ingestedPaperResponse {
	resp := ingestedPaperResponse{
		ID:            p.ID.String(),
		Title:         p.Title,
		Abstract:      p.Abstract,
		Year:          p.Year,
		Venue:         p.Venue,
		DOI:           p.DOI,
		URL:           p.URL,
		Authors:       domainAuthorsToResponse(p.Authors),
		CitationCount: p.CitationCount,
		Sources:       sourcesToStrings(p.Sources),
		Fidelity:      string(p.Fidelity),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.PDF != nil {
		resp.PDF = &pdfMetadataResponse{
			URL:              p.PDF.URL,
			ExtractionMethod: string(p.PDF.ExtractionMethod),
			Confidence:       string(p.PDF.Confidence),
			DownloadedAt:     p.PDF.DownloadedAt,
			SizeBytes:        p.PDF.SizeBytes,
		}
	}
	return resp
}

func jobToResponse(j *domain.PDFJob) jobResponse {
	return jobResponse{
		ID:         j.ID.String(),
		PaperID:    j.PaperID.String(),
		PdfURL:     j.PDFURL,
		Title:      j.Title,
		Priority:   string(j.Priority),
		Status:     string(j.Status),
		Progress:   j.Progress,
		Attempts:   j.Attempts,
		LastError:  j.LastError,
		Method:     string(j.Method),
		Confidence: string(j.Confidence),
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}
