package openalex

// SearchResponse is the top-level response from the OpenAlex works endpoint.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains pagination metadata from an OpenAlex response.
type Meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Work represents a single work (paper) in the OpenAlex schema.
type Work struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	PublicationDate       string           `json:"publication_date"`
	Type                  string           `json:"type"`
	CitedByCount          int              `json:"cited_by_count"`
	IsOpenAccess          bool             `json:"is_oa"`
	OpenAccess            *OpenAccessInfo  `json:"open_access"`
	PrimaryLocation       *Location        `json:"primary_location"`
	Authorships           []Authorship     `json:"authorships"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// OpenAccessInfo describes the open access status of a work.
type OpenAccessInfo struct {
	IsOA     bool   `json:"is_oa"`
	OAStatus string `json:"oa_status"`
	OAURL    string `json:"oa_url"`
}

// Location describes where a version of a work is hosted.
type Location struct {
	LandingPageURL string          `json:"landing_page_url"`
	PDFURL         string          `json:"pdf_url"`
	Source         *LocationSource `json:"source"`
}

// LocationSource identifies the venue hosting a location.
type LocationSource struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// Authorship links an author to a work with their institutional affiliations.
type Authorship struct {
	AuthorPosition string        `json:"author_position"`
	Author         WorkAuthor    `json:"author"`
	Institutions   []Institution `json:"institutions"`
}

// WorkAuthor is the author record embedded in an authorship.
type WorkAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Orcid       string `json:"orcid"`
}

// Institution is an institutional affiliation.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CountryCode string `json:"country_code"`
}
