package pdfqueue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/pdf"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

// memPapers is a minimal in-memory PaperRepository for worker tests.
type memPapers struct {
	mu     sync.Mutex
	papers map[uuid.UUID]*domain.IngestedPaper
	chunks map[uuid.UUID][]domain.ContentChunk
}

func newMemPapers() *memPapers {
	return &memPapers{
		papers: make(map[uuid.UUID]*domain.IngestedPaper),
		chunks: make(map[uuid.UUID][]domain.ContentChunk),
	}
}

func (m *memPapers) add(paper *domain.IngestedPaper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	m.papers[paper.ID] = paper
}

func (m *memPapers) Upsert(_ context.Context, paper *domain.IngestedPaper) (*domain.IngestedPaper, bool, error) {
	m.add(paper)
	return paper, true, nil
}

func (m *memPapers) GetByID(_ context.Context, id uuid.UUID) (*domain.IngestedPaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paper, ok := m.papers[id]
	if !ok {
		return nil, domain.NewNotFoundError("paper", id.String())
	}
	copied := *paper
	return &copied, nil
}

func (m *memPapers) GetByNaturalKey(_ context.Context, naturalKey string) (*domain.IngestedPaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, paper := range m.papers {
		if paper.NaturalKey == naturalKey {
			copied := *paper
			return &copied, nil
		}
	}
	return nil, domain.NewNotFoundError("paper", naturalKey)
}

func (m *memPapers) List(_ context.Context, _ repository.PaperFilter) ([]*domain.IngestedPaper, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	papers := make([]*domain.IngestedPaper, 0, len(m.papers))
	for _, paper := range m.papers {
		copied := *paper
		papers = append(papers, &copied)
	}
	return papers, int64(len(papers)), nil
}

func (m *memPapers) UpdatePDFMetadata(_ context.Context, paperID uuid.UUID, meta *domain.PDFMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	paper, ok := m.papers[paperID]
	if !ok {
		return domain.NewNotFoundError("paper", paperID.String())
	}
	paper.PDF = meta
	return nil
}

func (m *memPapers) ReplaceChunks(_ context.Context, paperID uuid.UUID, chunks []domain.ContentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[paperID] = chunks
	return nil
}

func (m *memPapers) GetChunks(_ context.Context, paperID uuid.UUID) ([]domain.ContentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[paperID], nil
}

func pdfServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestPool(t *testing.T, store *MemoryJobStore, papers *memPapers, sink *recordSink, chain *Chain, maxAttempts int) *Pool {
	t.Helper()
	downloader := pdf.NewDownloader(pdf.Config{AllowPrivateNetworks: true, Timeout: 5 * time.Second})
	return NewPool(store, papers, downloader, chain, sink, testMetrics, zerolog.Nop(), config.PDFQueueConfig{
		Workers:      1,
		MaxAttempts:  maxAttempts,
		PollInterval: 5 * time.Millisecond,
	})
}

func claimAndProcess(t *testing.T, pool *Pool, store *MemoryJobStore, maxAttempts int) {
	t.Helper()
	job, err := store.ClaimNext(context.Background(), maxAttempts)
	require.NoError(t, err)
	pool.process(context.Background(), job, zerolog.Nop())
}

func TestPoolProcessSuccess(t *testing.T) {
	server := pdfServer(t, pdfWithStream([]byte("BT (A survey of neural ranking models for literature retrieval) Tj ET")))

	papers := newMemPapers()
	paper := &domain.IngestedPaper{
		Title:    "Neural Ranking Survey",
		Year:     2023,
		Fidelity: domain.FidelityFull,
	}
	papers.add(paper)

	store := NewMemoryJobStore()
	job := &domain.PDFJob{PaperID: paper.ID, PDFURL: server.URL, Title: paper.Title}
	require.NoError(t, store.Enqueue(context.Background(), job))

	sink := &recordSink{}
	chain := newChain(t, domain.ConfidenceMedium, NewTextLayerExtractor())
	pool := newTestPool(t, store, papers, sink, chain, 3)

	claimAndProcess(t, pool, store, 3)

	got, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, domain.ExtractionMethodTextLayer, got.Method)
	assert.Equal(t, domain.ConfidenceMedium, got.Confidence)

	stored, err := papers.GetByID(context.Background(), paper.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PDF)
	assert.Equal(t, server.URL, stored.PDF.URL)
	assert.Equal(t, domain.ExtractionMethodTextLayer, stored.PDF.ExtractionMethod)
	assert.NotEmpty(t, stored.PDF.ContentHash)
	assert.True(t, stored.HasExtractedPDF())

	chunks, err := papers.GetChunks(context.Background(), paper.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Content, "neural ranking")

	types := sink.types()
	assert.Equal(t, domain.EventTypeJobStarted, types[0])
	assert.Equal(t, domain.EventTypeJobCompleted, types[len(types)-1])
	assert.Contains(t, types, domain.EventTypeJobProgress)
}

func TestPoolLightweightPaperSkipsChunks(t *testing.T) {
	server := pdfServer(t, pdfWithStream([]byte("BT (metadata only paper text) Tj ET")))

	papers := newMemPapers()
	paper := &domain.IngestedPaper{Title: "Lightweight", Year: 2023, Fidelity: domain.FidelityLightweight}
	papers.add(paper)

	store := NewMemoryJobStore()
	job := &domain.PDFJob{PaperID: paper.ID, PDFURL: server.URL}
	require.NoError(t, store.Enqueue(context.Background(), job))

	pool := newTestPool(t, store, papers, &recordSink{}, newChain(t, domain.ConfidenceMedium, NewTextLayerExtractor()), 3)
	claimAndProcess(t, pool, store, 3)

	got, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)

	chunks, err := papers.GetChunks(context.Background(), paper.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPoolConsistent404RetriesToBound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	papers := newMemPapers()
	paper := &domain.IngestedPaper{Title: "Vanished", Year: 2020}
	papers.add(paper)

	store := NewMemoryJobStore()
	job := &domain.PDFJob{PaperID: paper.ID, PDFURL: server.URL + "/gone.pdf"}
	require.NoError(t, store.Enqueue(context.Background(), job))

	sink := &recordSink{}
	pool := newTestPool(t, store, papers, sink, newChain(t, domain.ConfidenceMedium, NewTextLayerExtractor()), 3)

	// A URL that 404s on every attempt burns the whole retry budget before
	// the job is poisoned.
	for attempt := 1; attempt <= 2; attempt++ {
		claimAndProcess(t, pool, store, 3)

		got, err := store.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, attempt, got.Attempts)
		assert.Contains(t, got.LastError, "HTTP 404")
	}

	claimAndProcess(t, pool, store, 3)

	got, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPoisoned, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Contains(t, got.LastError, "HTTP 404")

	types := sink.types()
	assert.Contains(t, types, domain.EventTypeJobFailed)
	assert.Equal(t, domain.EventTypeJobPoisoned, types[len(types)-1])
}

func TestPoolRetryExhaustionPoisons(t *testing.T) {
	server := pdfServer(t, pdfWithStream([]byte("BT (scanned page with broken text layer) Tj ET")))

	papers := newMemPapers()
	paper := &domain.IngestedPaper{Title: "Scanned", Year: 1995}
	papers.add(paper)

	store := NewMemoryJobStore()
	job := &domain.PDFJob{PaperID: paper.ID, PDFURL: server.URL}
	require.NoError(t, store.Enqueue(context.Background(), job))

	sink := &recordSink{}
	failing := &stubExtractor{method: domain.ExtractionMethodOCR, err: context.DeadlineExceeded}
	pool := newTestPool(t, store, papers, sink, newChain(t, domain.ConfidenceMedium, failing), 2)

	claimAndProcess(t, pool, store, 2)
	got, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status, "first failure stays retryable")

	claimAndProcess(t, pool, store, 2)
	got, err = store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPoisoned, got.Status)
	assert.Equal(t, 2, got.Attempts)

	types := sink.types()
	assert.Contains(t, types, domain.EventTypeJobFailed)
	assert.Equal(t, domain.EventTypeJobPoisoned, types[len(types)-1])
}

func TestPoolRunStopsOnCancel(t *testing.T) {
	server := pdfServer(t, pdfWithStream([]byte("BT (full pipeline run) Tj ET")))

	papers := newMemPapers()
	paper := &domain.IngestedPaper{Title: "Pipeline", Year: 2024}
	papers.add(paper)

	store := NewMemoryJobStore()
	job := &domain.PDFJob{PaperID: paper.ID, PDFURL: server.URL}
	require.NoError(t, store.Enqueue(context.Background(), job))

	pool := newTestPool(t, store, papers, &recordSink{}, newChain(t, domain.ConfidenceMedium, NewTextLayerExtractor()), 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := store.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
