package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

const (
	// ssePollInterval is how often we poll the store for authoritative state.
	ssePollInterval = 2 * time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 30 * time.Minute
)

// streamJobEvents handles GET /api/v1/pdf-jobs/{jobID}/events (SSE).
//
// Events arrive on two paths: the in-process bus pushes transitions as they
// happen, and a poll ticker reads the job row. The row is authoritative; a
// dropped bus event is recovered by the next poll.
func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// If already terminal, send one snapshot event and close.
	if job.Status.IsTerminal() {
		sendSSEEvent(w, flusher, domain.NewJobStatusEvent(domain.EventTypeForStatus(job.Status), job, "job is in terminal state"))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var busCh <-chan domain.JobStatusEvent
	if s.bus != nil {
		sub := s.bus.Subscribe(jobID)
		defer sub.Close()
		busCh = sub.C
	}

	// Send initial state.
	sendSSEEvent(w, flusher, domain.NewJobStatusEvent(domain.EventTypeForStatus(job.Status), job, "event stream started"))

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	lastStatus := job.Status
	lastProgress := job.Progress

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, domain.NewJobStatusEvent(domain.EventTypeJobProgress, job, "stream max duration exceeded"))
			return

		case event, open := <-busCh:
			if !open {
				// Bus shut down; fall back to polling only.
				busCh = nil
				continue
			}
			sendSSEEvent(w, flusher, event)
			lastStatus = event.Status
			lastProgress = event.Progress
			if event.Status.IsTerminal() {
				return
			}

		case <-ticker.C:
			current, pollErr := s.jobs.Get(ctx, jobID)
			if pollErr != nil {
				s.logger.Error().Err(pollErr).Str("job_id", jobID.String()).Msg("failed to poll job status")
				continue
			}

			if current.Status == lastStatus && current.Progress == lastProgress {
				continue
			}
			eventType := domain.EventTypeJobProgress
			if current.Status != lastStatus {
				eventType = domain.EventTypeForStatus(current.Status)
			}
			lastStatus = current.Status
			lastProgress = current.Progress

			sendSSEEvent(w, flusher, domain.NewJobStatusEvent(eventType, current, "status: "+string(current.Status)))
			if current.Status.IsTerminal() {
				return
			}
		}
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event domain.JobStatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
