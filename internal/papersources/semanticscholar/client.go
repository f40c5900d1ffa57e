package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests.
	// Unauthenticated clients share a pool of roughly 1 req/sec.
	DefaultRateLimit = 1.0

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of results per request.
	DefaultMaxResults = 100

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,url,title,abstract,year,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf,publicationTypes"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// MaxResults is the maximum number of results to return per search.
	MaxResults int

	// Enabled indicates whether this source is enabled.
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

// Client implements the papersources.PaperSource interface for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new Semantic Scholar client with the given configuration.
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
		httpClient: httpClient,
		config:     cfg,
	}
}

// NewWithHTTPClient creates a client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	start := time.Now()

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

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]domain.RawPaper, 0, len(searchResp.Data))
	for i := range searchResp.Data {
		if paper, ok := resultToRawPaper(&searchResp.Data[i]); ok {
			if !params.IncludePreprints && paper.Preprint {
				continue
			}
			papers = append(papers, paper)
		}
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.Total,
		HasMore:        searchResp.Next > 0,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// IsSlow reports whether fast-mode searches should skip this source.
func (c *Client) IsSlow() bool {
	return false
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")

	q := searchURL.Query()
	q.Set("query", params.Query)
	q.Set("fields", paperFields)

	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}
	q.Set("limit", strconv.Itoa(limit))

	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	if params.OpenAccessOnly {
		q.Set("openAccessPdf", "")
	}

	// Semantic Scholar filters by year range: "2020-2023", "2020-", "-2023".
	if params.FromYear > 0 && params.ToYear > 0 {
		q.Set("year", fmt.Sprintf("%d-%d", params.FromYear, params.ToYear))
	} else if params.FromYear > 0 {
		q.Set("year", fmt.Sprintf("%d-", params.FromYear))
	} else if params.ToYear > 0 {
		q.Set("year", fmt.Sprintf("-%d", params.ToYear))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Limit error body to 1MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// resultToRawPaper converts a single API paper result to the uniform raw
// paper shape. Results without a title are skipped.
func resultToRawPaper(result *PaperResult) (domain.RawPaper, bool) {
	if result.Title == "" {
		return domain.RawPaper{}, false
	}

	paper := domain.RawPaper{
		Title:         result.Title,
		Abstract:      result.Abstract,
		Year:          result.Year,
		Venue:         result.Venue,
		URL:           result.URL,
		CitationCount: result.CitationCount,
		OpenAccess:    result.IsOpenAccess,
		Source:        domain.SourceTypeSemanticScholar,
	}

	// The journal name is usually more specific than the venue string.
	if result.Journal != nil && result.Journal.Name != "" {
		paper.Venue = result.Journal.Name
	}

	if result.OpenAccessPDF != nil {
		paper.PDFURL = result.OpenAccessPDF.URL
	}

	if result.ExternalIDs != nil {
		paper.DOI = domain.NormalizeDOI(result.ExternalIDs.DOI)
		// Papers known only to arXiv with no DOI are preprints.
		if result.ExternalIDs.ArXiv != "" && paper.DOI == "" && paper.Venue == "" {
			paper.Preprint = true
		}
	}

	paper.Authors = make([]domain.Author, 0, len(result.Authors))
	for _, a := range result.Authors {
		paper.Authors = append(paper.Authors, domain.Author{Name: a.Name})
	}

	return paper, true
}
