package pdfqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

// Compile-time interface verification.
var _ repository.JobRepository = (*MemoryJobStore)(nil)

// MemoryJobStore is an in-memory JobRepository used by tests and local runs
// without Postgres. Claim semantics match the SQL implementation: one claim
// wins per job, elevated priority first, then oldest first, and processing
// jobs past the claim lease are reclaimable.
type MemoryJobStore struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*domain.PDFJob
	claimLease time.Duration
	now        func() time.Time
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:       make(map[uuid.UUID]*domain.PDFJob),
		claimLease: repository.DefaultClaimLease,
		now:        time.Now,
	}
}

// Enqueue inserts a new pending job.
func (m *MemoryJobStore) Enqueue(ctx context.Context, job *domain.PDFJob) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.PaperID == uuid.Nil {
		return domain.NewValidationError("paper_id", "paper ID is required")
	}
	if job.PDFURL == "" {
		return domain.NewValidationError("pdf_url", "PDF URL is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.jobs {
		if existing.PaperID == job.PaperID &&
			(existing.Status == domain.JobStatusPending || existing.Status == domain.JobStatusProcessing) {
			return domain.NewAlreadyExistsError("pdf_job", job.PaperID.String())
		}
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Priority == "" {
		job.Priority = domain.JobPriorityNormal
	}
	job.Status = domain.JobStatusPending
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

// GetByID retrieves a job by its UUID.
func (m *MemoryJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.PDFJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.NewNotFoundError("pdf_job", id.String())
	}
	copied := *job
	return &copied, nil
}

// ClaimNext claims the next runnable job.
func (m *MemoryJobStore) ClaimNext(ctx context.Context, maxAttempts int) (*domain.PDFJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	staleBefore := m.now().UTC().Add(-m.claimLease)
	var runnable []*domain.PDFJob
	for _, job := range m.jobs {
		switch {
		case job.Status == domain.JobStatusPending,
			job.Status == domain.JobStatusFailed && job.Attempts < maxAttempts,
			job.Status == domain.JobStatusProcessing && job.UpdatedAt.Before(staleBefore):
			runnable = append(runnable, job)
		}
	}
	if len(runnable) == 0 {
		return nil, domain.ErrNotFound
	}

	sort.Slice(runnable, func(i, j int) bool {
		if runnable[i].Priority.Weight() != runnable[j].Priority.Weight() {
			return runnable[i].Priority.Weight() > runnable[j].Priority.Weight()
		}
		return runnable[i].CreatedAt.Before(runnable[j].CreatedAt)
	})

	job := runnable[0]
	job.Status = domain.JobStatusProcessing
	job.Attempts++
	job.Progress = 0
	job.UpdatedAt = m.now().UTC()

	copied := *job
	return &copied, nil
}

// Transition moves a job between statuses.
func (m *MemoryJobStore) Transition(ctx context.Context, t repository.JobTransition) (*domain.PDFJob, error) {
	if !t.From.CanTransitionTo(t.To) {
		return nil, &domain.JobTransitionError{JobID: t.JobID.String(), From: t.From, To: t.To}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[t.JobID]
	if !ok {
		return nil, domain.NewNotFoundError("pdf_job", t.JobID.String())
	}
	if job.Status != t.From {
		return nil, &domain.JobTransitionError{JobID: t.JobID.String(), From: t.From, To: t.To}
	}

	job.Status = t.To
	job.LastError = t.Error
	job.Method = t.Method
	job.Confidence = t.Confidence
	if t.To == domain.JobStatusCompleted {
		job.Progress = 100
	}
	job.UpdatedAt = time.Now().UTC()

	copied := *job
	return &copied, nil
}

// SetProgress updates the progress of a processing job.
func (m *MemoryJobStore) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return domain.NewValidationError("progress", "must be in [0, 100]")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.NewNotFoundError("pdf_job", id.String())
	}
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ListByPaper retrieves all jobs for a paper, newest first.
func (m *MemoryJobStore) ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.PDFJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []*domain.PDFJob
	for _, job := range m.jobs {
		if job.PaperID == paperID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// CountByStatus returns the number of jobs per status.
func (m *MemoryJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.JobStatus]int64)
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}
