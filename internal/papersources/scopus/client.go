// Package scopus implements the papersources.PaperSource interface for the
// Elsevier Scopus search API (https://dev.elsevier.com).
package scopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default Scopus API base URL.
	DefaultBaseURL = "https://api.elsevier.com/content"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// apiKeyHeader is the HTTP header name for the Scopus API key.
	apiKeyHeader = "X-ELS-APIKey"

	// sourceName is the human-readable name for this source.
	sourceName = "Scopus"
)

// Config holds configuration for the Scopus client.
type Config struct {
	// BaseURL is the Scopus API base URL.
	BaseURL string

	// APIKey is the Elsevier API key for authentication.
	// Required for all Scopus API requests.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults is the maximum results to return per search request.
	MaxResults int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool

	// Slow marks the source for exclusion from fast-mode searches.
	Slow bool
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

// Client implements the papersources.PaperSource interface for Scopus.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new Scopus client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		UserAgent:    "Helixir-PaperDiscovery/1.0",
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Scopus client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Scopus for papers matching the given parameters.
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
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]domain.RawPaper, 0, len(searchResp.SearchResults.Entries))
	for i := range searchResp.SearchResults.Entries {
		if paper, ok := entryToRawPaper(&searchResp.SearchResults.Entries[i]); ok {
			papers = append(papers, paper)
		}
	}

	totalResults, _ := strconv.Atoi(searchResp.SearchResults.TotalResults)
	hasMore := params.Offset+len(searchResp.SearchResults.Entries) < totalResults

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   totalResults,
		HasMore:        hasMore,
		Source:         domain.SourceTypeScopus,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeScopus
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
// Scopus requires an API key, so it returns false if the key is empty.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// IsSlow reports whether fast-mode searches should skip this source.
func (c *Client) IsSlow() bool {
	return c.config.Slow
}

// buildSearchURL constructs the Scopus search API URL.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/scopus"

	queryParts := []string{fmt.Sprintf("TITLE-ABS-KEY(%s)", params.Query)}

	// PUBYEAR comparisons are exclusive, so widen the bounds by one.
	if params.FromYear > 0 {
		queryParts = append(queryParts, fmt.Sprintf("PUBYEAR > %d", params.FromYear-1))
	}
	if params.ToYear > 0 {
		queryParts = append(queryParts, fmt.Sprintf("PUBYEAR < %d", params.ToYear+1))
	}

	if params.OpenAccessOnly {
		queryParts = append(queryParts, "OPENACCESS(1)")
	}

	urlQuery := url.Values{}
	urlQuery.Set("query", strings.Join(queryParts, " AND "))
	urlQuery.Set("view", "COMPLETE")

	maxResults := params.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}
	urlQuery.Set("count", strconv.Itoa(maxResults))

	if params.Offset > 0 {
		urlQuery.Set("start", strconv.Itoa(params.Offset))
	}

	baseURL.RawQuery = urlQuery.Encode()
	return baseURL.String(), nil
}

// entryToRawPaper converts a Scopus entry to the uniform raw paper shape.
// Entries without a title are skipped.
func entryToRawPaper(entry *Entry) (domain.RawPaper, bool) {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return domain.RawPaper{}, false
	}

	var year int
	if entry.CoverDate != "" {
		if t, err := time.Parse("2006-01-02", entry.CoverDate); err == nil {
			year = t.Year()
		}
	}

	citationCount, _ := strconv.Atoi(entry.CitedByCount)

	var landingURL string
	for _, link := range entry.Links {
		if link.Ref == "scopus" {
			landingURL = link.Href
			break
		}
	}

	return domain.RawPaper{
		Title:         title,
		Abstract:      strings.TrimSpace(entry.Description),
		Year:          year,
		Venue:         strings.TrimSpace(entry.PublicationName),
		DOI:           domain.NormalizeDOI(entry.DOI),
		URL:           landingURL,
		Authors:       extractAuthors(entry),
		CitationCount: citationCount,
		OpenAccess:    entry.OpenAccessFlag,
		Source:        domain.SourceTypeScopus,
	}, true
}

// extractAuthors extracts authors from the Scopus entry.
// Uses the COMPLETE view author list when available, otherwise falls back to dc:creator.
func extractAuthors(entry *Entry) []domain.Author {
	if entry.Authors != nil && len(entry.Authors.Authors) > 0 {
		authors := make([]domain.Author, 0, len(entry.Authors.Authors))
		for _, sa := range entry.Authors.Authors {
			name := strings.TrimSpace(sa.Name)
			if name == "" {
				if sa.GivenName != "" && sa.Surname != "" {
					name = sa.GivenName + " " + sa.Surname
				} else if sa.Surname != "" {
					name = sa.Surname
				}
			}
			if name == "" {
				continue
			}
			authors = append(authors, domain.Author{
				Name:  name,
				ORCID: strings.TrimSpace(sa.ORCID),
			})
		}
		return authors
	}

	if creator := strings.TrimSpace(entry.Creator); creator != "" {
		return []domain.Author{{Name: creator}}
	}

	return nil
}
