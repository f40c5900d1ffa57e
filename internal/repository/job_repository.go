package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// JobRepository manages the persistent PDF acquisition queue.
type JobRepository interface {
	// Enqueue inserts a new pending job. A pending or processing job for
	// the same paper already in the queue yields domain.ErrAlreadyExists.
	Enqueue(ctx context.Context, job *domain.PDFJob) error

	// GetByID retrieves a job by its UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PDFJob, error)

	// ClaimNext atomically claims the next runnable job (pending, or
	// failed with attempts below maxAttempts), moves it to processing,
	// and increments its attempt counter. Elevated priority jobs run
	// first, then oldest first. Returns domain.ErrNotFound when the
	// queue has no runnable job.
	ClaimNext(ctx context.Context, maxAttempts int) (*domain.PDFJob, error)

	// Transition moves a job from one status to another, recording the
	// optional error message, extraction method, and confidence. A job no
	// longer in the expected status yields a domain.JobTransitionError.
	Transition(ctx context.Context, t JobTransition) (*domain.PDFJob, error)

	// SetProgress updates the progress percentage of a processing job.
	SetProgress(ctx context.Context, id uuid.UUID, progress int) error

	// ListByPaper retrieves all jobs for a paper, newest first.
	ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.PDFJob, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// JobTransition describes one requested job status change.
type JobTransition struct {
	JobID uuid.UUID
	From  domain.JobStatus
	To    domain.JobStatus

	// Error is recorded on the job for failed transitions.
	Error string

	// Method and Confidence are recorded for completed transitions.
	Method     domain.ExtractionMethod
	Confidence domain.Confidence
}
