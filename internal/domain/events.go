package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants for PDF job status events.
const (
	EventTypeJobEnqueued  = "pdf_job.enqueued"
	EventTypeJobStarted   = "pdf_job.started"
	EventTypeJobProgress  = "pdf_job.progress"
	EventTypeJobCompleted = "pdf_job.completed"
	EventTypeJobFailed    = "pdf_job.failed"
	EventTypeJobPoisoned  = "pdf_job.poisoned"
)

// JobStatusEvent is a derived notification emitted on every PDF job state
// transition. The job row is the source of truth; a missed event never
// corrupts job state.
type JobStatusEvent struct {
	EventType  string           `json:"event_type"`
	JobID      uuid.UUID        `json:"job_id"`
	PaperID    uuid.UUID        `json:"paper_id"`
	Status     JobStatus        `json:"status"`
	Progress   int              `json:"progress"`
	Message    string           `json:"message,omitempty"`
	Method     ExtractionMethod `json:"extraction_method,omitempty"`
	Confidence Confidence       `json:"confidence,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NewJobStatusEvent builds an event snapshot from a job's current state.
func NewJobStatusEvent(eventType string, job *PDFJob, message string) JobStatusEvent {
	return JobStatusEvent{
		EventType:  eventType,
		JobID:      job.ID,
		PaperID:    job.PaperID,
		Status:     job.Status,
		Progress:   job.Progress,
		Message:    message,
		Method:     job.Method,
		Confidence: job.Confidence,
		Timestamp:  time.Now().UTC(),
	}
}

// EventTypeForStatus maps a job status to its event type constant.
func EventTypeForStatus(s JobStatus) string {
	switch s {
	case JobStatusPending:
		return EventTypeJobEnqueued
	case JobStatusProcessing:
		return EventTypeJobStarted
	case JobStatusCompleted:
		return EventTypeJobCompleted
	case JobStatusFailed:
		return EventTypeJobFailed
	case JobStatusPoisoned:
		return EventTypeJobPoisoned
	default:
		return EventTypeJobProgress
	}
}
