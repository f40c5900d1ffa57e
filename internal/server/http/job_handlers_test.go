package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

func TestEnqueuePDFJob(t *testing.T) {
	ts := newTestServer(t)
	paper := ts.papers.add(&domain.IngestedPaper{
		Title: "GPT-3: Language Models are Few-Shot Learners",
		Year:  2020,
		URL:   "https://arxiv.org/abs/2005.14165",
	})

	rec := ts.request(t, http.MethodPost, "/api/v1/papers/"+paper.ID.String()+"/pdf-jobs", map[string]interface{}{
		"pdf_url":  "https://arxiv.org/pdf/2005.14165",
		"priority": "elevated",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp jobResponse
	decodeResponse(t, rec, &resp)
	assert.Equal(t, paper.ID.String(), resp.PaperID)
	assert.Equal(t, "https://arxiv.org/pdf/2005.14165", resp.PdfURL)
	assert.Equal(t, "elevated", resp.Priority)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, paper.Title, resp.Title)
}

func TestEnqueuePDFJobFallsBackToPaperURL(t *testing.T) {
	ts := newTestServer(t)
	paper := ts.papers.add(&domain.IngestedPaper{
		Title: "Fallback",
		Year:  2021,
		URL:   "https://example.org/paper.pdf",
	})

	rec := ts.request(t, http.MethodPost, "/api/v1/papers/"+paper.ID.String()+"/pdf-jobs", map[string]interface{}{})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, ts.jobs.enqueued, 1)
	assert.Equal(t, "https://example.org/paper.pdf", ts.jobs.enqueued[0].PDFURL)
}

func TestEnqueuePDFJobRejections(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing paper", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/api/v1/papers/"+uuid.NewString()+"/pdf-jobs", map[string]interface{}{})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no url anywhere", func(t *testing.T) {
		paper := ts.papers.add(&domain.IngestedPaper{Title: "No URL", Year: 2020})
		rec := ts.request(t, http.MethodPost, "/api/v1/papers/"+paper.ID.String()+"/pdf-jobs", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("already extracted", func(t *testing.T) {
		paper := ts.papers.add(&domain.IngestedPaper{
			Title: "Done",
			Year:  2020,
			URL:   "https://example.org/done.pdf",
			PDF: &domain.PDFMetadata{
				URL:              "https://example.org/done.pdf",
				ExtractionMethod: domain.ExtractionMethodStructured,
				Confidence:       domain.ConfidenceHigh,
			},
		})
		rec := ts.request(t, http.MethodPost, "/api/v1/papers/"+paper.ID.String()+"/pdf-jobs", map[string]interface{}{})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("duplicate active job", func(t *testing.T) {
		paper := ts.papers.add(&domain.IngestedPaper{Title: "Dup", Year: 2020, URL: "https://example.org/d.pdf"})
		ts.jobs.enqueueErr = domain.NewAlreadyExistsError("pdf_job", paper.ID.String())
		defer func() { ts.jobs.enqueueErr = nil }()

		rec := ts.request(t, http.MethodPost, "/api/v1/papers/"+paper.ID.String()+"/pdf-jobs", map[string]interface{}{})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetPDFJob(t *testing.T) {
	ts := newTestServer(t)
	job := &domain.PDFJob{
		ID:       uuid.New(),
		PaperID:  uuid.New(),
		PDFURL:   "https://example.org/a.pdf",
		Priority: domain.JobPriorityNormal,
		Status:   domain.JobStatusProcessing,
		Progress: 40,
		Attempts: 1,
	}
	ts.jobs.jobs[job.ID] = job

	rec := ts.request(t, http.MethodGet, "/api/v1/pdf-jobs/"+job.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp jobResponse
	decodeResponse(t, rec, &resp)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 40, resp.Progress)
	assert.Equal(t, 1, resp.Attempts)

	t.Run("not found", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/v1/pdf-jobs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListPaperJobs(t *testing.T) {
	ts := newTestServer(t)
	paperID := uuid.New()
	for _, status := range []domain.JobStatus{domain.JobStatusPoisoned, domain.JobStatusCompleted} {
		job := &domain.PDFJob{ID: uuid.New(), PaperID: paperID, PDFURL: "https://example.org/x.pdf", Status: status}
		ts.jobs.jobs[job.ID] = job
	}

	rec := ts.request(t, http.MethodGet, "/api/v1/papers/"+paperID.String()+"/pdf-jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listJobsResponse
	decodeResponse(t, rec, &resp)
	assert.Equal(t, paperID.String(), resp.PaperID)
	assert.Len(t, resp.Jobs, 2)
}

func TestStreamJobEventsTerminalJob(t *testing.T) {
	ts := newTestServer(t)
	job := &domain.PDFJob{
		ID:       uuid.New(),
		PaperID:  uuid.New(),
		PDFURL:   "https://example.org/a.pdf",
		Status:   domain.JobStatusCompleted,
		Progress: 100,
	}
	ts.jobs.jobs[job.ID] = job

	rec := ts.request(t, http.MethodGet, "/api/v1/pdf-jobs/"+job.ID.String()+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "event: "+domain.EventTypeJobCompleted)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, countSSEEvents(body))
}

func TestStreamJobEventsLiveUpdates(t *testing.T) {
	ts := newTestServer(t)
	job := &domain.PDFJob{
		ID:      uuid.New(),
		PaperID: uuid.New(),
		PDFURL:  "https://example.org/a.pdf",
		Status:  domain.JobStatusProcessing,
	}
	ts.jobs.jobs[job.ID] = job

	go func() {
		// Give the handler time to subscribe before publishing.
		time.Sleep(50 * time.Millisecond)
		job.Progress = 40
		ts.bus.Publish(domain.NewJobStatusEvent(domain.EventTypeJobProgress, job, ""))

		time.Sleep(10 * time.Millisecond)
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		ts.bus.Publish(domain.NewJobStatusEvent(domain.EventTypeJobCompleted, job, ""))
	}()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pdf-jobs/"+job.ID.String()+"/events", nil)
	rec := httptest.NewRecorder()
	// ServeHTTP blocks until the terminal event arrives.
	ts.server.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "event: "+domain.EventTypeJobStarted, "initial snapshot")
	assert.Contains(t, body, "event: "+domain.EventTypeJobProgress)
	assert.Contains(t, body, "event: "+domain.EventTypeJobCompleted)
}

func TestStreamJobEventsInvalidID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/pdf-jobs/nope/events", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/pdf-jobs/"+uuid.NewString()+"/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func countSSEEvents(body string) int {
	count := 0
	for i := 0; i+7 <= len(body); i++ {
		if body[i:i+7] == "event: " && (i == 0 || body[i-1] == '\n') {
			count++
		}
	}
	return count
}
