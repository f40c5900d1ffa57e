// Package semanticscholar provides a client for the Semantic Scholar Graph API.
//
// This package implements the papersources.PaperSource interface for searching
// academic papers from Semantic Scholar.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// SearchResponse represents the response from the paper search endpoint.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page of results.
	// A value of 0 indicates no more results.
	Next int `json:"next"`

	// Data contains the list of papers returned by the search.
	Data []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the Semantic Scholar API response.
type PaperResult struct {
	// PaperID is the Semantic Scholar unique identifier for the paper.
	PaperID string `json:"paperId"`

	// Title is the title of the paper.
	Title string `json:"title"`

	// Abstract is the paper's abstract text.
	Abstract string `json:"abstract"`

	// Year is the publication year.
	Year int `json:"year"`

	// Venue is the publication venue (conference, journal name, etc.).
	Venue string `json:"venue"`

	// Journal contains journal-specific information if published in a journal.
	Journal *Journal `json:"journal,omitempty"`

	// Authors is the list of paper authors.
	Authors []Author `json:"authors"`

	// CitationCount is the number of citations this paper has received.
	CitationCount int `json:"citationCount"`

	// IsOpenAccess indicates whether the paper is open access.
	IsOpenAccess bool `json:"isOpenAccess"`

	// OpenAccessPDF contains information about the open access PDF if available.
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`

	// ExternalIDs contains external identifiers for the paper (DOI, ArXiv, etc.).
	ExternalIDs *ExternalIDs `json:"externalIds,omitempty"`

	// PublicationTypes lists the kinds of publication (e.g. "JournalArticle").
	PublicationTypes []string `json:"publicationTypes,omitempty"`

	// URL is the Semantic Scholar landing page for the paper.
	URL string `json:"url,omitempty"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI           string `json:"DOI,omitempty"`
	ArXiv         string `json:"ArXiv,omitempty"`
	PubMed        string `json:"PubMed,omitempty"`
	PubMedCentral string `json:"PubMedCentral,omitempty"`
}

// Journal contains journal-specific information.
type Journal struct {
	Name   string `json:"name,omitempty"`
	Volume string `json:"volume,omitempty"`
	Pages  string `json:"pages,omitempty"`
}

// Author represents a paper author in the Semantic Scholar API.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// OpenAccessPDF contains information about an open access PDF.
type OpenAccessPDF struct {
	// URL is the direct URL to the PDF.
	URL string `json:"url,omitempty"`

	// Status indicates the open access status (e.g., "HYBRID", "GOLD", "GREEN").
	Status string `json:"status,omitempty"`
}

// ErrorResponse represents an error response from the Semantic Scholar API.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
