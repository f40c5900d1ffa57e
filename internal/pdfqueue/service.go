// Package pdfqueue implements the background PDF acquisition queue: durable
// jobs with bounded retries, a worker pool claiming work atomically, and a
// fallback chain of text extraction strategies.
package pdfqueue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/events"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

// Service enqueues and inspects PDF acquisition jobs. Processing is done by
// the worker Pool.
type Service struct {
	jobs    repository.JobRepository
	sink    events.Sink
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewService creates a queue service. The sink may be nil when no event
// delivery is wired.
func NewService(jobs repository.JobRepository, sink events.Sink, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		jobs:    jobs,
		sink:    sink,
		metrics: metrics,
		logger:  logger.With().Str("component", "pdf_queue").Logger(),
	}
}

// Enqueue creates a pending acquisition job for a paper. A paper with a job
// already pending or processing yields domain.ErrAlreadyExists.
func (s *Service) Enqueue(ctx context.Context, paperID uuid.UUID, pdfURL, title string, priority domain.JobPriority) (*domain.PDFJob, error) {
	if pdfURL == "" {
		return nil, fmt.Errorf("%w: pdf_url is required", domain.ErrInvalidInput)
	}
	if priority == "" {
		priority = domain.JobPriorityNormal
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidInput, priority)
	}

	job := &domain.PDFJob{
		ID:       uuid.New(),
		PaperID:  paperID,
		PDFURL:   pdfURL,
		Title:    title,
		Priority: priority,
		Status:   domain.JobStatusPending,
	}

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	s.metrics.JobsEnqueued.WithLabelValues(string(priority)).Inc()
	s.publish(domain.NewJobStatusEvent(domain.EventTypeJobEnqueued, job, ""))

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Str("paper_id", paperID.String()).
		Str("priority", string(priority)).
		Msg("pdf job enqueued")

	return job, nil
}

// Get retrieves a job by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.PDFJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListByPaper retrieves all jobs for a paper, newest first.
func (s *Service) ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.PDFJob, error) {
	return s.jobs.ListByPaper(ctx, paperID)
}

// QueueDepth returns the number of jobs per status.
func (s *Service) QueueDepth(ctx context.Context) (map[domain.JobStatus]int64, error) {
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for status, count := range counts {
		s.metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(count))
	}
	return counts, nil
}

func (s *Service) publish(event domain.JobStatusEvent) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(event)
}
