package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/database"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/events"
	"github.com/helixir/paper-discovery-service/internal/ingest"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/repository"
	"github.com/helixir/paper-discovery-service/internal/search"
)

// Shared across the package's tests; prometheus collectors register globally.
var serverTestMetrics = observability.NewMetrics("httpserver_test")

// Test stubs.

type stubSearch struct {
	resp      *search.Response
	err       error
	gotTopic  string
	gotOpts   search.Options
	callCount int
}

func (s *stubSearch) Search(_ context.Context, topic string, opts search.Options) (*search.Response, error) {
	s.callCount++
	s.gotTopic = topic
	s.gotOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type stubIngest struct {
	result      *ingest.Result
	err         error
	gotInput    ingest.PaperInput
	gotChunks   []ingest.ChunkInput
	gotFidelity domain.Fidelity
}

func (s *stubIngest) IngestLightweight(_ context.Context, input ingest.PaperInput) (*ingest.Result, error) {
	s.gotInput = input
	s.gotFidelity = domain.FidelityLightweight
	return s.result, s.err
}

func (s *stubIngest) IngestWithChunks(_ context.Context, input ingest.PaperInput, chunks []ingest.ChunkInput) (*ingest.Result, error) {
	s.gotInput = input
	s.gotChunks = chunks
	s.gotFidelity = domain.FidelityFull
	return s.result, s.err
}

type stubJobs struct {
	jobs       map[uuid.UUID]*domain.PDFJob
	enqueueErr error
	enqueued   []*domain.PDFJob
}

func newStubJobs() *stubJobs {
	return &stubJobs{jobs: make(map[uuid.UUID]*domain.PDFJob)}
}

func (s *stubJobs) Enqueue(_ context.Context, paperID uuid.UUID, pdfURL, title string, priority domain.JobPriority) (*domain.PDFJob, error) {
	if s.enqueueErr != nil {
		return nil, s.enqueueErr
	}
	if priority == "" {
		priority = domain.JobPriorityNormal
	}
	job := &domain.PDFJob{
		ID:       uuid.New(),
		PaperID:  paperID,
		PDFURL:   pdfURL,
		Title:    title,
		Priority: priority,
		Status:   domain.JobStatusPending,
	}
	s.jobs[job.ID] = job
	s.enqueued = append(s.enqueued, job)
	return job, nil
}

func (s *stubJobs) Get(_ context.Context, id uuid.UUID) (*domain.PDFJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.NewNotFoundError("pdf_job", id.String())
	}
	copied := *job
	return &copied, nil
}

func (s *stubJobs) ListByPaper(_ context.Context, paperID uuid.UUID) ([]*domain.PDFJob, error) {
	var jobs []*domain.PDFJob
	for _, job := range s.jobs {
		if job.PaperID == paperID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

type stubPapers struct {
	papers map[uuid.UUID]*domain.IngestedPaper
	chunks map[uuid.UUID][]domain.ContentChunk
}

func newStubPapers() *stubPapers {
	return &stubPapers{
		papers: make(map[uuid.UUID]*domain.IngestedPaper),
		chunks: make(map[uuid.UUID][]domain.ContentChunk),
	}
}

func (s *stubPapers) add(paper *domain.IngestedPaper) *domain.IngestedPaper {
	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	s.papers[paper.ID] = paper
	return paper
}

func (s *stubPapers) Upsert(_ context.Context, paper *domain.IngestedPaper) (*domain.IngestedPaper, bool, error) {
	return s.add(paper), true, nil
}

func (s *stubPapers) GetByID(_ context.Context, id uuid.UUID) (*domain.IngestedPaper, error) {
	paper, ok := s.papers[id]
	if !ok {
		return nil, domain.NewNotFoundError("paper", id.String())
	}
	return paper, nil
}

func (s *stubPapers) GetByNaturalKey(_ context.Context, naturalKey string) (*domain.IngestedPaper, error) {
	for _, paper := range s.papers {
		if paper.NaturalKey == naturalKey {
			return paper, nil
		}
	}
	return nil, domain.NewNotFoundError("paper", naturalKey)
}

func (s *stubPapers) List(_ context.Context, filter repository.PaperFilter) ([]*domain.IngestedPaper, int64, error) {
	var papers []*domain.IngestedPaper
	for _, paper := range s.papers {
		if filter.Fidelity != nil && paper.Fidelity != *filter.Fidelity {
			continue
		}
		if filter.HasPDF != nil && (paper.PDF != nil) != *filter.HasPDF {
			continue
		}
		papers = append(papers, paper)
	}
	return papers, int64(len(papers)), nil
}

func (s *stubPapers) UpdatePDFMetadata(_ context.Context, paperID uuid.UUID, meta *domain.PDFMetadata) error {
	paper, ok := s.papers[paperID]
	if !ok {
		return domain.NewNotFoundError("paper", paperID.String())
	}
	paper.PDF = meta
	return nil
}

func (s *stubPapers) ReplaceChunks(_ context.Context, paperID uuid.UUID, chunks []domain.ContentChunk) error {
	s.chunks[paperID] = chunks
	return nil
}

func (s *stubPapers) GetChunks(_ context.Context, paperID uuid.UUID) ([]domain.ContentChunk, error) {
	return s.chunks[paperID], nil
}

type stubHealth struct {
	status string
	errMsg string
}

func (s *stubHealth) Health(_ context.Context) database.HealthStatus {
	return database.HealthStatus{Status: s.status, Error: s.errMsg}
}

// testServer bundles the server and its stubs for one test.
type testServer struct {
	server   *Server
	searches *stubSearch
	ingests  *stubIngest
	jobs     *stubJobs
	papers   *stubPapers
	health   *stubHealth
	bus      *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		searches: &stubSearch{resp: &search.Response{}},
		ingests:  &stubIngest{},
		jobs:     newStubJobs(),
		papers:   newStubPapers(),
		health:   &stubHealth{status: "healthy"},
		bus:      events.NewBus(serverTestMetrics, zerolog.Nop()),
	}
	t.Cleanup(ts.bus.Close)
	ts.server = NewServer(Config{Address: "127.0.0.1:0"}, ts.searches, ts.ingests, ts.jobs, ts.papers, ts.bus, ts.health, zerolog.Nop())
	return ts
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// Health endpoints.

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.health.status = "unhealthy"
	ts.health.errMsg = "connection refused"

	rec = ts.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.request(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCorrelationIDHeader(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-42")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "test-correlation-42", rec.Header().Get("X-Correlation-ID"))

	// A missing correlation ID is generated.
	rec = ts.request(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

// Search endpoint.

func TestSearchPapers(t *testing.T) {
	ts := newTestServer(t)
	ts.searches.resp = &search.Response{
		Papers: []domain.CanonicalPaper{
			{
				CanonicalID:   "doi:10.48550/arxiv.1706.03762",
				Title:         "Attention Is All You Need",
				Year:          2017,
				DOI:           "10.48550/arxiv.1706.03762",
				CitationCount: 90000,
				Sources:       []domain.SourceType{domain.SourceTypeOpenAlex, domain.SourceTypeArXiv},
				CombinedScore: 0.91,
			},
		},
		SearchTimeMs: 420,
	}

	rec := ts.request(t, http.MethodPost, "/api/v1/search", map[string]interface{}{
		"topic":       "transformer attention",
		"max_results": 10,
		"sources":     []string{"openalex"},
		"fast_mode":   true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp searchResponse
	decodeResponse(t, rec, &resp)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "Attention Is All You Need", resp.Papers[0].Title)
	assert.Equal(t, []string{"openalex", "arxiv"}, resp.Papers[0].Sources)
	assert.Equal(t, 0.91, resp.Papers[0].Score.Combined)
	assert.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, int64(420), resp.SearchTimeMs)

	assert.Equal(t, "transformer attention", ts.searches.gotTopic)
	assert.Equal(t, 10, ts.searches.gotOpts.MaxResults)
	assert.True(t, ts.searches.gotOpts.FastMode)
	assert.Equal(t, []domain.SourceType{domain.SourceTypeOpenAlex}, ts.searches.gotOpts.Sources)
}

func TestSearchPapersValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing topic", map[string]interface{}{"max_results": 5}},
		{"blank topic", map[string]interface{}{"topic": "   "}},
		{"short topic", map[string]interface{}{"topic": "ab"}},
		{"invalid json", "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if s, ok := tt.body.(string); ok {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(s)))
				rec = httptest.NewRecorder()
				ts.server.Handler().ServeHTTP(rec, req)
			} else {
				rec = ts.request(t, http.MethodPost, "/api/v1/search", tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, ts.searches.callCount)
		})
	}
}

func TestSearchPapersErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid options", domain.ErrInvalidOptions, http.StatusBadRequest},
		{"unavailable", domain.ErrSearchUnavailable, http.StatusServiceUnavailable},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.searches.err = tt.err

			rec := ts.request(t, http.MethodPost, "/api/v1/search", map[string]interface{}{
				"topic": "graph neural networks",
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
