package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/papersources"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>42</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <opensearch:itemsPerPage>2</opensearch:itemsPerPage>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <title>  Scaling Laws
      for Neural Language Models  </title>
    <summary>
      We study empirical scaling laws.
    </summary>
    <published>2023-01-15T18:30:00Z</published>
    <author><name>Jane Doe</name></author>
    <author><name>John Roe</name></author>
    <link href="http://arxiv.org/pdf/2301.12345v2" title="pdf" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/hep-th/9901001v1</id>
    <title>An Older Style Identifier</title>
    <summary>Abstract text.</summary>
    <published>1999-01-04T12:00:00Z</published>
    <author><name>Old Author</name></author>
    <journal_ref>Phys. Rev. D 60, 104001</journal_ref>
  </entry>
</feed>`

func newTestClient(serverURL string) *Client {
	return NewWithHTTPClient(
		Config{BaseURL: serverURL, Enabled: true},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Timeout:   5 * time.Second,
			RateLimit: 100,
		}),
	)
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "all:scaling laws", r.URL.Query().Get("search_query"))
		assert.Equal(t, "submittedDate", r.URL.Query().Get("sortBy"))

		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.Search(context.Background(), papersources.SearchParams{Query: "scaling laws"})
	require.NoError(t, err)
	require.Len(t, result.Papers, 2)

	assert.Equal(t, 42, result.TotalResults)
	assert.True(t, result.HasMore)
	assert.Equal(t, domain.SourceTypeArXiv, result.Source)

	first := result.Papers[0]
	assert.Equal(t, "Scaling Laws for Neural Language Models", first.Title)
	assert.Equal(t, "We study empirical scaling laws.", first.Abstract)
	assert.Equal(t, 2023, first.Year)
	assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", first.PDFURL)
	assert.Equal(t, "http://arxiv.org/abs/2301.12345v2", first.URL)
	assert.True(t, first.OpenAccess)
	assert.True(t, first.Preprint)
	require.Len(t, first.Authors, 2)
	assert.Equal(t, "Jane Doe", first.Authors[0].Name)

	second := result.Papers[1]
	assert.Equal(t, "Phys. Rev. D 60, 104001", second.Venue)
	assert.False(t, second.Preprint)
	// No pdf link in the entry, falls back to the canonical pdf URL.
	assert.Equal(t, "https://arxiv.org/pdf/hep-th/9901001", second.PDFURL)
}

func TestSearchYearFilter(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Search(context.Background(), papersources.SearchParams{
		Query:    "quantum",
		FromYear: 2020,
		ToYear:   2022,
	})
	require.NoError(t, err)
	assert.Equal(t, "all:quantum AND submittedDate:[202001010000 TO 202212312359]", gotQuery)
}

func TestSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Search(context.Background(), papersources.SearchParams{Query: "x"})
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "arXiv", apiErr.Source)
}

func TestExtractArXivID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"http://arxiv.org/abs/2301.12345v1", "2301.12345"},
		{"http://arxiv.org/abs/2301.12345", "2301.12345"},
		{"http://arxiv.org/abs/hep-th/9901001v3", "hep-th/9901001"},
		{"https://example.org/not-arxiv", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArXivID(tt.input), tt.input)
	}
}

func TestBuildDateFilter(t *testing.T) {
	assert.Empty(t, buildDateFilter(0, 0))
	assert.Equal(t, "submittedDate:[202001010000 TO *]", buildDateFilter(2020, 0))
	assert.Equal(t, "submittedDate:[* TO 201912312359]", buildDateFilter(0, 2019))
}
