package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// Compile-time interface verification.
var _ JobRepository = (*PgJobRepository)(nil)

// DefaultClaimLease bounds how long a claimed job may sit in processing
// before ClaimNext considers it abandoned and hands it to another worker.
const DefaultClaimLease = 15 * time.Minute

// PgJobRepository is a PostgreSQL implementation of JobRepository.
type PgJobRepository struct {
	db         DBTX
	claimLease time.Duration
}

// NewPgJobRepository creates a new PostgreSQL job repository.
func NewPgJobRepository(db DBTX) *PgJobRepository {
	return &PgJobRepository{db: db, claimLease: DefaultClaimLease}
}

const jobColumns = `id, paper_id, pdf_url, title, priority, status, progress,
	attempts, last_error, extraction_method, confidence, created_at, updated_at`

// Enqueue inserts a new pending job. The pdf_jobs_one_active partial unique
// index rejects a second pending or processing job for the same paper.
func (r *PgJobRepository) Enqueue(ctx context.Context, job *domain.PDFJob) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.PaperID == uuid.Nil {
		return domain.NewValidationError("paper_id", "paper ID is required")
	}
	if job.PDFURL == "" {
		return domain.NewValidationError("pdf_url", "PDF URL is required")
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Priority == "" {
		job.Priority = domain.JobPriorityNormal
	}
	job.Status = domain.JobStatusPending
	now := time.Now().UTC()

	query := `
		INSERT INTO pdf_jobs (
			id, paper_id, pdf_url, title, priority, status, progress,
			attempts, last_error, extraction_method, confidence, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, '', '', '', $7, $7)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.PaperID, job.PDFURL, job.Title, job.Priority, job.Status, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return domain.NewAlreadyExistsError("pdf_job", job.PaperID.String())
			}
			if pgErr.Code == "23503" {
				return domain.NewNotFoundError("paper", job.PaperID.String())
			}
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// GetByID retrieves a job by its UUID.
func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PDFJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM pdf_jobs WHERE id = $1`, jobColumns)

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("pdf_job", id.String())
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically claims the next runnable job. The inner SELECT uses
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row.
// Jobs stuck in processing past the claim lease were abandoned by a crashed
// worker and become claimable again; the reclaim still counts an attempt, so
// a job that keeps stranding eventually poisons through the normal budget.
func (r *PgJobRepository) ClaimNext(ctx context.Context, maxAttempts int) (*domain.PDFJob, error) {
	query := fmt.Sprintf(`
		UPDATE pdf_jobs SET
			status = 'processing',
			attempts = attempts + 1,
			progress = 0,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM pdf_jobs
			WHERE status = 'pending'
			   OR (status = 'failed' AND attempts < $1)
			   OR (status = 'processing' AND updated_at < NOW() - make_interval(secs => $2))
			ORDER BY CASE WHEN priority = 'elevated' THEN 0 ELSE 1 END, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s`, jobColumns)

	job, err := scanJob(r.db.QueryRow(ctx, query, maxAttempts, r.claimLease.Seconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Transition moves a job between statuses. The status guard in the WHERE
// clause makes it safe against concurrent workers: losing the race yields a
// JobTransitionError, not a silent overwrite.
func (r *PgJobRepository) Transition(ctx context.Context, t JobTransition) (*domain.PDFJob, error) {
	if !t.From.CanTransitionTo(t.To) {
		return nil, &domain.JobTransitionError{JobID: t.JobID.String(), From: t.From, To: t.To}
	}

	query := fmt.Sprintf(`
		UPDATE pdf_jobs SET
			status = $1,
			last_error = $2,
			extraction_method = $3,
			confidence = $4,
			progress = CASE WHEN $1 = 'completed' THEN 100 ELSE progress END,
			updated_at = NOW()
		WHERE id = $5 AND status = $6
		RETURNING %s`, jobColumns)

	job, err := scanJob(r.db.QueryRow(ctx, query,
		t.To, t.Error, t.Method, t.Confidence, t.JobID, t.From,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the job does not exist or it is no longer in the
			// expected status.
			if _, getErr := r.GetByID(ctx, t.JobID); getErr != nil {
				return nil, getErr
			}
			return nil, &domain.JobTransitionError{JobID: t.JobID.String(), From: t.From, To: t.To}
		}
		return nil, fmt.Errorf("failed to transition job: %w", err)
	}
	return job, nil
}

// SetProgress updates the progress percentage of a processing job.
func (r *PgJobRepository) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return domain.NewValidationError("progress", "must be in [0, 100]")
	}

	query := `
		UPDATE pdf_jobs SET progress = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'processing'`

	result, err := r.db.Exec(ctx, query, progress, id)
	if err != nil {
		return fmt.Errorf("failed to set job progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("pdf_job", id.String())
	}
	return nil
}

// ListByPaper retrieves all jobs for a paper, newest first.
func (r *PgJobRepository) ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.PDFJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM pdf_jobs WHERE paper_id = $1 ORDER BY created_at DESC`, jobColumns)

	rows, err := r.db.Query(ctx, query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.PDFJob
	for rows.Next() {
		job, err := scanJobFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// CountByStatus returns the number of jobs per status.
func (r *PgJobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM pdf_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var status domain.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}

	return counts, nil
}

func jobDestinations(job *domain.PDFJob) []interface{} {
	return []interface{}{
		&job.ID, &job.PaperID, &job.PDFURL, &job.Title, &job.Priority,
		&job.Status, &job.Progress, &job.Attempts, &job.LastError,
		&job.Method, &job.Confidence, &job.CreatedAt, &job.UpdatedAt,
	}
}

func scanJob(row pgx.Row) (*domain.PDFJob, error) {
	var job domain.PDFJob
	if err := row.Scan(jobDestinations(&job)...); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobFromRows(rows pgx.Rows) (*domain.PDFJob, error) {
	var job domain.PDFJob
	if err := rows.Scan(jobDestinations(&job)...); err != nil {
		return nil, err
	}
	return &job, nil
}
