package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// enqueueJobRequest is the JSON request body for scheduling PDF acquisition.
type enqueueJobRequest struct {
	PdfURL   string `json:"pdf_url"`
	Priority string `json:"priority,omitempty"`
}

// enqueuePDFJob handles POST /api/v1/papers/{paperID}/pdf-jobs.
func (s *Server) enqueuePDFJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	var req enqueueJobRequest
	if !decodeBody(w, r, &req) {
		return
	}

	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	pdfURL := req.PdfURL
	if pdfURL == "" {
		pdfURL = paper.URL
	}
	if pdfURL == "" {
		writeError(w, http.StatusBadRequest, "pdf_url is required: paper has no known URL")
		return
	}
	if paper.HasExtractedPDF() {
		writeError(w, http.StatusConflict, "paper already has an extracted PDF")
		return
	}

	job, err := s.jobs.Enqueue(ctx, paperID, pdfURL, paper.Title, domain.JobPriority(req.Priority))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

// getPDFJob handles GET /api/v1/pdf-jobs/{jobID}.
func (s *Server) getPDFJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(job))
}

// listPaperJobs handles GET /api/v1/papers/{paperID}/pdf-jobs.
func (s *Server) listPaperJobs(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	jobs, err := s.jobs.ListByPaper(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = jobToResponse(j)
	}

	writeJSON(w, http.StatusOK, listJobsResponse{
		PaperID: paperID.String(),
		Jobs:    resp,
	})
}
