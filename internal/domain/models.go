// Package domain provides domain models and business logic for the Paper Discovery Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType represents the external bibliographic API that provided paper data.
// These values must match the database enum source_type.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeScopus          SourceType = "scopus"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeArXiv           SourceType = "arxiv"
)

// KnownSources lists every source the service can query, in authority
// precedence order. Earlier sources win dedup conflicts.
var KnownSources = []SourceType{
	SourceTypeOpenAlex,
	SourceTypeSemanticScholar,
	SourceTypePubMed,
	SourceTypeScopus,
	SourceTypeArXiv,
}

// IsKnownSource reports whether s names a registered source type.
func IsKnownSource(s SourceType) bool {
	for _, known := range KnownSources {
		if s == known {
			return true
		}
	}
	return false
}

// Fidelity selects how much of a paper is persisted on ingestion.
type Fidelity string

const (
	// FidelityLightweight stores metadata only.
	FidelityLightweight Fidelity = "lightweight"
	// FidelityFull additionally stores retrieval content chunks.
	FidelityFull Fidelity = "full"
)

// JobStatus represents the lifecycle states of a PDF acquisition job.
// These values must match the database enum pdf_job_status.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPoisoned   JobStatus = "poisoned"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPoisoned:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. The machine only moves forward: pending -> processing ->
// {completed|failed}, failed -> {processing|poisoned}. Terminal states never
// transition again.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	case JobStatusFailed:
		return next == JobStatusProcessing || next == JobStatusPoisoned
	default:
		return false
	}
}

// JobPriority orders jobs within the acquisition queue.
type JobPriority string

const (
	JobPriorityNormal   JobPriority = "normal"
	JobPriorityElevated JobPriority = "elevated"
)

// IsValid reports whether p is a registered priority.
func (p JobPriority) IsValid() bool {
	return p == JobPriorityNormal || p == JobPriorityElevated
}

// Weight returns the numeric ordering weight; higher runs first.
func (p JobPriority) Weight() int {
	if p == JobPriorityElevated {
		return 1
	}
	return 0
}

// ExtractionMethod identifies which strategy in the fallback chain produced
// the extracted text. These values must match the database enum extraction_method.
type ExtractionMethod string

const (
	ExtractionMethodOpenAccess ExtractionMethod = "open_access_lookup"
	ExtractionMethodStructured ExtractionMethod = "structured_parser"
	ExtractionMethodTextLayer  ExtractionMethod = "text_layer"
	ExtractionMethodOCR        ExtractionMethod = "ocr"
)

// Confidence grades how trustworthy an extraction result is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AtLeast reports whether c meets or exceeds the given minimum confidence.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.rank() >= min.rank()
}

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// PDFMetadata records the outcome of a successful PDF acquisition for a paper.
type PDFMetadata struct {
	URL              string           `json:"url"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	Confidence       Confidence       `json:"confidence"`
	DownloadedAt     time.Time        `json:"downloaded_at"`
	SizeBytes        int64            `json:"size_bytes"`
	ContentHash      string           `json:"content_hash,omitempty"`
}

// ContentChunk is one retrieval unit of a paper's full text, persisted only
// for full-fidelity ingestion.
type ContentChunk struct {
	ID        uuid.UUID `json:"id"`
	PaperID   uuid.UUID `json:"paper_id"`
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Section   string    `json:"section,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestedPaper is a paper persisted in the library store. It is keyed by an
// internal UUID distinct from the canonical ID, which is only a dedup key.
// The PDF acquisition queue mutates the PDF field when extraction completes;
// nothing else mutates an ingested paper, and the pipeline never deletes one.
type IngestedPaper struct {
	ID            uuid.UUID    `json:"id"`
	NaturalKey    string       `json:"natural_key"`
	Title         string       `json:"title"`
	Abstract      string       `json:"abstract,omitempty"`
	Year          int          `json:"year"`
	Venue         string       `json:"venue,omitempty"`
	DOI           string       `json:"doi,omitempty"`
	URL           string       `json:"url,omitempty"`
	Authors       []Author     `json:"authors"`
	CitationCount int          `json:"citation_count"`
	Sources       []SourceType `json:"sources"`
	Fidelity      Fidelity     `json:"fidelity"`
	PDF           *PDFMetadata `json:"pdf,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// HasExtractedPDF reports whether a successful extraction already exists.
func (p *IngestedPaper) HasExtractedPDF() bool {
	return p.PDF != nil && p.PDF.ExtractionMethod != ""
}

// PDFJob is one unit of work in the PDF acquisition queue.
type PDFJob struct {
	ID         uuid.UUID        `json:"id"`
	PaperID    uuid.UUID        `json:"paper_id"`
	PDFURL     string           `json:"pdf_url"`
	Title      string           `json:"title"`
	Priority   JobPriority      `json:"priority"`
	Status     JobStatus        `json:"status"`
	Progress   int              `json:"progress"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
	Method     ExtractionMethod `json:"extraction_method,omitempty"`
	Confidence Confidence       `json:"confidence,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
