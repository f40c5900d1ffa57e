package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/ranking"
	"github.com/helixir/paper-discovery-service/internal/search"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	minTopicLength     = 3
	maxTopicLength     = 1000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// searchRequest is the JSON request body for a paper search.
type searchRequest struct {
	Topic            string           `json:"topic"`
	Sources          []string         `json:"sources,omitempty"`
	MaxResults       int              `json:"max_results,omitempty" validate:"omitempty,min=1"`
	FromYear         int              `json:"from_year,omitempty" validate:"omitempty,min=1000,max=2100"`
	ToYear           int              `json:"to_year,omitempty" validate:"omitempty,min=1000,max=2100"`
	IncludePreprints bool             `json:"include_preprints,omitempty"`
	OpenAccessOnly   bool             `json:"open_access_only,omitempty"`
	FastMode         bool             `json:"fast_mode,omitempty"`
	Weights          *ranking.Weights `json:"weights,omitempty"`
}

// searchPapers handles POST /api/v1/search.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if len(req.Topic) < minTopicLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("topic must be at least %d characters", minTopicLength))
		return
	}
	if len(req.Topic) > maxTopicLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("topic must be at most %d characters", maxTopicLength))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid search request: "+err.Error())
		return
	}

	opts := search.Options{
		MaxResults:       req.MaxResults,
		FromYear:         req.FromYear,
		ToYear:           req.ToYear,
		IncludePreprints: req.IncludePreprints,
		OpenAccessOnly:   req.OpenAccessOnly,
		FastMode:         req.FastMode,
	}
	if len(req.Sources) > 0 {
		opts.Sources = make([]domain.SourceType, len(req.Sources))
		for i, src := range req.Sources {
			opts.Sources[i] = domain.SourceType(src)
		}
	}
	if req.Weights != nil {
		opts.Weights = *req.Weights
	}

	result, err := s.searches.Search(ctx, req.Topic, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	papers := make([]canonicalPaperResponse, len(result.Papers))
	for i, p := range result.Papers {
		papers[i] = canonicalPaperToResponse(p)
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Cached:       result.Cached,
		SearchTimeMs: result.SearchTimeMs,
	})
}

// decodeBody reads and unmarshals a JSON request body, writing a 400 error
// response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidOptions), errors.Is(err, domain.ErrInvalidPaperData):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrJobTransition):
		writeError(w, http.StatusConflict, "conflicting job state")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrSearchUnavailable):
		writeError(w, http.StatusServiceUnavailable, "no paper source is currently available")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if
// invalid. The parse error details are not echoed back.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query
// parameters, applying default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodePageToken encodes the next offset as a base64 page token. Returns an
// empty string when there are no more results.
func encodePageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
