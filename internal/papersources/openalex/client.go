// Package openalex implements the papersources.PaperSource interface for the
// OpenAlex scholarly works API (https://docs.openalex.org).
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// maxPerPage is the OpenAlex per-page ceiling.
	maxPerPage = 200

	// doiPrefix is the URL prefix that OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// orcidPrefix is the URL prefix that OpenAlex uses for ORCID iDs.
	orcidPrefix = "https://orcid.org/"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// Providing an email grants access to higher rate limits.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults is the maximum results to return per search request.
	// Defaults to 25, maximum is 200 per OpenAlex API.
	MaxResults int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.PaperSource interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: "Helixir-PaperDiscovery/1.0 (mailto:" + cfg.Email + ")",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries OpenAlex for works matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError("OpenAlex", resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]domain.RawPaper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if paper, ok := c.workToRawPaper(&searchResp.Results[i]); ok {
			papers = append(papers, paper)
		}
	}

	hasMore := params.Offset+len(searchResp.Results) < searchResp.Meta.Count

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.Meta.Count,
		HasMore:        hasMore,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable source name.
func (c *Client) Name() string {
	return "OpenAlex"
}

// IsEnabled reports whether this source is enabled for searches.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// IsSlow reports whether fast-mode searches should skip this source.
// OpenAlex responds quickly and participates in fast searches.
func (c *Client) IsSlow() bool {
	return false
}

// buildSearchURL constructs the works search URL from the given parameters.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	base, err := url.Parse(c.config.BaseURL + "/works")
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	q := base.Query()
	q.Set("search", params.Query)

	if filters := buildFilters(params); len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	perPage := params.MaxResults
	if perPage == 0 {
		perPage = c.config.MaxResults
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	q.Set("per_page", strconv.Itoa(perPage))

	// OpenAlex paginates by page, not offset.
	if params.Offset > 0 && perPage > 0 {
		q.Set("page", strconv.Itoa(params.Offset/perPage+1))
	}

	// Join the polite pool for better rate limits.
	if c.config.Email != "" {
		q.Set("mailto", c.config.Email)
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}

// buildFilters converts search parameters into OpenAlex filter expressions.
func buildFilters(params papersources.SearchParams) []string {
	var filters []string
	if params.FromYear > 0 {
		filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", params.FromYear))
	}
	if params.ToYear > 0 {
		filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", params.ToYear))
	}
	if params.OpenAccessOnly {
		filters = append(filters, "is_oa:true")
	}
	if !params.IncludePreprints {
		filters = append(filters, "type:!preprint")
	}
	return filters
}

// workToRawPaper converts an OpenAlex work into the uniform raw paper shape.
// Works without a title are skipped.
func (c *Client) workToRawPaper(work *Work) (domain.RawPaper, bool) {
	// Prefer display_name as it is usually cleaner.
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}
	if title == "" {
		return domain.RawPaper{}, false
	}

	authors := make([]domain.Author, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		author := domain.Author{
			Name:  authorship.Author.DisplayName,
			ORCID: strings.TrimPrefix(authorship.Author.Orcid, orcidPrefix),
		}
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		authors = append(authors, author)
	}

	var venue string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}

	isOpenAccess := work.IsOpenAccess
	if work.OpenAccess != nil {
		isOpenAccess = work.OpenAccess.IsOA
	}

	var pdfURL string
	if work.OpenAccess != nil && work.OpenAccess.OAURL != "" {
		pdfURL = work.OpenAccess.OAURL
	} else if work.PrimaryLocation != nil && work.PrimaryLocation.PDFURL != "" {
		pdfURL = work.PrimaryLocation.PDFURL
	}

	var landingURL string
	if work.PrimaryLocation != nil {
		landingURL = work.PrimaryLocation.LandingPageURL
	}
	if landingURL == "" {
		landingURL = work.ID
	}

	return domain.RawPaper{
		Title:         title,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		Year:          work.PublicationYear,
		Venue:         venue,
		DOI:           domain.NormalizeDOI(work.DOI),
		URL:           landingURL,
		PDFURL:        pdfURL,
		Authors:       authors,
		CitationCount: work.CitedByCount,
		OpenAccess:    isOpenAccess,
		Preprint:      work.Type == "preprint",
		Source:        domain.SourceTypeOpenAlex,
	}, true
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index representation, where each word maps to the positions it occupies.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	type positioned struct {
		word string
		pos  int
	}

	var words []positioned
	for word, positions := range index {
		for _, pos := range positions {
			words = append(words, positioned{word: word, pos: pos})
		}
	}

	sort.Slice(words, func(i, j int) bool {
		return words[i].pos < words[j].pos
	})

	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.word)
	}
	return sb.String()
}
