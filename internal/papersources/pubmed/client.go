package pubmed

import (
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 100

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// With an API key this can be raised to 10 req/sec.
	RateLimit float64

	// MaxResults is the default maximum results per search.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool

	// Slow marks the source for exclusion from fast-mode searches.
	// The two-step esearch/efetch flow makes PubMed noticeably slower
	// than single-request sources.
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

// Client implements the papersources.PaperSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: "Helixir-PaperDiscovery/1.0",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries PubMed for papers matching the given parameters.
// It performs a two-step search:
//  1. esearch.fcgi retrieves PMIDs matching the query
//  2. efetch.fcgi retrieves full article metadata for the PMIDs
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	searchResult, err := c.esearch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	// Phrases the index does not know yield empty results, not an error.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		return &papersources.SearchResult{
			Papers:         []domain.RawPaper{},
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	if len(searchResult.IDList.IDs) == 0 {
		return &papersources.SearchResult{
			Papers:         []domain.RawPaper{},
			TotalResults:   searchResult.Count,
			HasMore:        searchResult.Count > params.Offset,
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	articles, err := c.efetch(ctx, searchResult.IDList.IDs)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	papers := make([]domain.RawPaper, 0, len(articles.Articles))
	for i := range articles.Articles {
		if paper, ok := articleToRawPaper(&articles.Articles[i]); ok {
			papers = append(papers, paper)
		}
	}

	hasMore := params.Offset+len(articles.Articles) < searchResult.Count

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResult.Count,
		HasMore:        hasMore,
		Source:         domain.SourceTypePubMed,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// IsSlow reports whether fast-mode searches should skip this source.
func (c *Client) IsSlow() bool {
	return c.config.Slow
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, params papersources.SearchParams) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", params.Query)
	q.Set("retmode", "xml")
	q.Set("usehistory", "n")

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	q.Set("retmax", strconv.Itoa(maxResults))

	if params.Offset > 0 {
		q.Set("retstart", strconv.Itoa(params.Offset))
	}

	if params.FromYear > 0 || params.ToYear > 0 {
		q.Set("datetype", "pdat")
		if params.FromYear > 0 {
			q.Set("mindate", strconv.Itoa(params.FromYear))
		}
		if params.ToYear > 0 {
			q.Set("maxdate", strconv.Itoa(params.ToYear))
		}
	}

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// efetch retrieves full article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML response into v.
func (c *Client) getXML(ctx context.Context, requestURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// articleToRawPaper converts a PubmedArticle to the uniform raw paper shape.
// Articles without a title are skipped.
func articleToRawPaper(article *PubmedArticle) (domain.RawPaper, bool) {
	citation := article.MedlineCitation

	title := strings.TrimSpace(citation.Article.ArticleTitle)
	if title == "" {
		return domain.RawPaper{}, false
	}

	journal := citation.Article.Journal.Title
	if journal == "" {
		journal = citation.Article.Journal.ISOAbbreviation
	}

	paper := domain.RawPaper{
		Title:    title,
		Abstract: extractAbstract(citation.Article.Abstract),
		Year:     extractYear(&citation.Article),
		Venue:    journal,
		DOI:      domain.NormalizeDOI(extractDOI(&citation.Article, &article.PubmedData)),
		URL:      "https://pubmed.ncbi.nlm.nih.gov/" + citation.PMID.Value + "/",
		Authors:  extractAuthors(citation.Article.AuthorList),
		Source:   domain.SourceTypePubMed,
	}

	// Articles deposited in PubMed Central are freely readable.
	for _, aid := range article.PubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "pmc" && aid.Value != "" {
			paper.OpenAccess = true
			paper.PDFURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/" + aid.Value + "/pdf/"
			break
		}
	}

	return paper, true
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article *Article, pubmedData *PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractYear extracts the publication year from the article.
// Uses ArticleDate if available, otherwise the journal issue PubDate.
func extractYear(article *Article) int {
	for _, ad := range article.ArticleDate {
		if year, err := strconv.Atoi(ad.Year); err == nil && year > 0 {
			return year
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate

	if pubDate.Year != "" {
		if year, err := strconv.Atoi(pubDate.Year); err == nil {
			return year
		}
	}

	// MedlineDate can be "2020 Jan-Feb", "2020 Spring", "2020-2021", etc.
	if pubDate.MedlineDate != "" {
		parts := strings.Fields(pubDate.MedlineDate)
		if len(parts) > 0 {
			yearStr := strings.Split(parts[0], "-")[0]
			if year, err := strconv.Atoi(yearStr); err == nil {
				return year
			}
		}
	}

	return 0
}

// extractAbstract concatenates multiple abstract sections into a single string.
// Structured abstracts keep their section labels.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors converts PubMed authors to domain authors.
func extractAuthors(authorList *AuthorList) []domain.Author {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]domain.Author, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = a.CollectiveName
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}
		if name == "" {
			continue
		}

		var orcid string
		for _, id := range a.Identifiers {
			if strings.EqualFold(id.Source, "ORCID") {
				orcid = id.Value
				break
			}
		}

		var affiliation string
		if len(a.AffiliationInfo) > 0 {
			affiliation = a.AffiliationInfo[0].Affiliation
		}

		authors = append(authors, domain.Author{
			Name:        name,
			Affiliation: affiliation,
			ORCID:       orcid,
		})
	}

	return authors
}
