package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/ingest"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

// ingestPaperRequest is the JSON request body for ingesting a paper.
type ingestPaperRequest struct {
	ingest.PaperInput

	// Fidelity selects lightweight (metadata only) or full ingestion.
	// Defaults to lightweight.
	Fidelity string `json:"fidelity,omitempty"`

	// Chunks carries full-text chunks for full-fidelity ingestion.
	Chunks []ingest.ChunkInput `json:"chunks,omitempty"`
}

// ingestPaper handles POST /api/v1/papers.
func (s *Server) ingestPaper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ingestPaperRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req.PaperInput); err != nil {
		writeError(w, http.StatusBadRequest, "invalid paper: "+err.Error())
		return
	}

	var result *ingest.Result
	var err error
	switch req.Fidelity {
	case "", string(domain.FidelityLightweight):
		result, err = s.ingests.IngestLightweight(ctx, req.PaperInput)
	case string(domain.FidelityFull):
		result, err = s.ingests.IngestWithChunks(ctx, req.PaperInput, req.Chunks)
	default:
		writeError(w, http.StatusBadRequest, "fidelity must be lightweight or full")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ingestResponse{
		PaperID:   result.PaperID.String(),
		Duplicate: result.Duplicate,
	}
	if result.JobID != nil {
		jobID := result.JobID.String()
		resp.JobID = &jobID
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// getPaper handles GET /api/v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	paper, err := s.papers.GetByID(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestedPaperToResponse(paper))
}

// listPapers handles GET /api/v1/papers with optional source, fidelity, and
// has_pdf filters.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	filter := repository.PaperFilter{
		Limit:  limit,
		Offset: offset,
	}

	if sourceParam := r.URL.Query().Get("source"); sourceParam != "" {
		source := domain.SourceType(sourceParam)
		if !domain.IsKnownSource(source) {
			writeError(w, http.StatusBadRequest, "unknown source: "+sourceParam)
			return
		}
		filter.Source = &source
	}
	if fidelityParam := r.URL.Query().Get("fidelity"); fidelityParam != "" {
		fidelity := domain.Fidelity(fidelityParam)
		if fidelity != domain.FidelityLightweight && fidelity != domain.FidelityFull {
			writeError(w, http.StatusBadRequest, "fidelity must be lightweight or full")
			return
		}
		filter.Fidelity = &fidelity
	}
	if hasPDFParam := r.URL.Query().Get("has_pdf"); hasPDFParam != "" {
		hasPDF := hasPDFParam == "true"
		filter.HasPDF = &hasPDF
	}

	papers, totalCount, err := s.papers.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]ingestedPaperResponse, len(papers))
	for i, p := range papers {
		resp[i] = ingestedPaperToResponse(p)
	}

	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:        resp,
		NextPageToken: encodePageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// getPaperChunks handles GET /api/v1/papers/{paperID}/chunks.
func (s *Server) getPaperChunks(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	// Verify the paper exists so a missing paper is a 404, not an empty list.
	if _, err := s.papers.GetByID(r.Context(), paperID); err != nil {
		writeDomainError(w, err)
		return
	}

	chunks, err := s.papers.GetChunks(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]chunkResponse, len(chunks))
	for i, c := range chunks {
		resp[i] = chunkResponse{Index: c.Index, Content: c.Content, Section: c.Section}
	}

	writeJSON(w, http.StatusOK, listChunksResponse{
		PaperID: paperID.String(),
		Chunks:  resp,
	})
}
