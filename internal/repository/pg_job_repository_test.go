package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

func jobRows(job *domain.PDFJob) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "paper_id", "pdf_url", "title", "priority", "status", "progress",
		"attempts", "last_error", "extraction_method", "confidence", "created_at", "updated_at",
	}).AddRow(
		job.ID, job.PaperID, job.PDFURL, job.Title, job.Priority, job.Status, job.Progress,
		job.Attempts, job.LastError, job.Method, job.Confidence, job.CreatedAt, job.UpdatedAt,
	)
}

func newTestJob(status domain.JobStatus) *domain.PDFJob {
	now := time.Now().UTC()
	return &domain.PDFJob{
		ID:        uuid.New(),
		PaperID:   uuid.New(),
		PDFURL:    "https://example.com/paper.pdf",
		Title:     "A Study of Test Papers",
		Priority:  domain.JobPriorityNormal,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPgJobRepository_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts pending job", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		job := &domain.PDFJob{
			PaperID: uuid.New(),
			PDFURL:  "https://example.com/paper.pdf",
			Title:   "Some Paper",
		}

		mock.ExpectExec("INSERT INTO pdf_jobs").
			WithArgs(
				pgxmock.AnyArg(), job.PaperID, job.PDFURL, job.Title,
				domain.JobPriorityNormal, domain.JobStatusPending, pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Enqueue(ctx, job))
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate active job yields already exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		job := &domain.PDFJob{PaperID: uuid.New(), PDFURL: "https://example.com/paper.pdf"}

		mock.ExpectExec("INSERT INTO pdf_jobs").
			WithArgs(
				pgxmock.AnyArg(), job.PaperID, job.PDFURL, "",
				domain.JobPriorityNormal, domain.JobStatusPending, pgxmock.AnyArg(),
			).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err = repo.Enqueue(ctx, job)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("rejects missing pdf url", func(t *testing.T) {
		repo := NewPgJobRepository(nil)
		err := repo.Enqueue(ctx, &domain.PDFJob{PaperID: uuid.New()})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgJobRepository_ClaimNext(t *testing.T) {
	ctx := context.Background()

	t.Run("claims runnable job", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		claimed := newTestJob(domain.JobStatusProcessing)
		claimed.Attempts = 1

		mock.ExpectQuery("UPDATE pdf_jobs SET").
			WithArgs(3, DefaultClaimLease.Seconds()).
			WillReturnRows(jobRows(claimed))

		job, err := repo.ClaimNext(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, job.Status)
		assert.Equal(t, 1, job.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("claim query covers stale processing jobs", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		reclaimed := newTestJob(domain.JobStatusProcessing)
		reclaimed.Attempts = 2

		// A job left in processing by a crashed worker becomes claimable
		// again once the claim lease runs out.
		mock.ExpectQuery(`status = 'processing' AND updated_at < NOW\(\) - make_interval`).
			WithArgs(3, DefaultClaimLease.Seconds()).
			WillReturnRows(jobRows(reclaimed))

		job, err := repo.ClaimNext(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, job.Status)
		assert.Equal(t, 2, job.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty queue yields not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)

		mock.ExpectQuery("UPDATE pdf_jobs SET").
			WithArgs(3, DefaultClaimLease.Seconds()).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.ClaimNext(ctx, 3)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgJobRepository_Transition(t *testing.T) {
	ctx := context.Background()

	t.Run("completes processing job", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		done := newTestJob(domain.JobStatusCompleted)
		done.Progress = 100
		done.Method = domain.ExtractionMethodTextLayer
		done.Confidence = domain.ConfidenceHigh

		mock.ExpectQuery("UPDATE pdf_jobs SET").
			WithArgs(
				domain.JobStatusCompleted, "", domain.ExtractionMethodTextLayer,
				domain.ConfidenceHigh, done.ID, domain.JobStatusProcessing,
			).
			WillReturnRows(jobRows(done))

		job, err := repo.Transition(ctx, JobTransition{
			JobID:      done.ID,
			From:       domain.JobStatusProcessing,
			To:         domain.JobStatusCompleted,
			Method:     domain.ExtractionMethodTextLayer,
			Confidence: domain.ConfidenceHigh,
		})
		require.NoError(t, err)
		assert.Equal(t, 100, job.Progress)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects illegal transition without touching the database", func(t *testing.T) {
		repo := NewPgJobRepository(nil)

		_, err := repo.Transition(ctx, JobTransition{
			JobID: uuid.New(),
			From:  domain.JobStatusCompleted,
			To:    domain.JobStatusProcessing,
		})
		assert.ErrorIs(t, err, domain.ErrJobTransition)
	})

	t.Run("lost race yields transition error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		existing := newTestJob(domain.JobStatusCompleted)

		mock.ExpectQuery("UPDATE pdf_jobs SET").
			WithArgs(
				domain.JobStatusFailed, "boom", domain.ExtractionMethod(""),
				domain.Confidence(""), existing.ID, domain.JobStatusProcessing,
			).
			WillReturnError(pgx.ErrNoRows)

		mock.ExpectQuery("SELECT (.+) FROM pdf_jobs WHERE id").
			WithArgs(existing.ID).
			WillReturnRows(jobRows(existing))

		_, err = repo.Transition(ctx, JobTransition{
			JobID: existing.ID,
			From:  domain.JobStatusProcessing,
			To:    domain.JobStatusFailed,
			Error: "boom",
		})
		assert.ErrorIs(t, err, domain.ErrJobTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgJobRepository_SetProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("updates progress", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgJobRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE pdf_jobs SET progress").
			WithArgs(40, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.SetProgress(ctx, id, 40))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects out of range progress", func(t *testing.T) {
		repo := NewPgJobRepository(nil)
		assert.ErrorIs(t, repo.SetProgress(ctx, uuid.New(), 101), domain.ErrInvalidInput)
	})
}

func TestPgJobRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgJobRepository(mock)

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow(domain.JobStatusPending, int64(4)).
			AddRow(domain.JobStatusPoisoned, int64(1)))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[domain.JobStatusPending])
	assert.Equal(t, int64(1), counts[domain.JobStatusPoisoned])
}
