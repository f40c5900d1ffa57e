// Package ingest persists discovered papers into the library store. Ingestion
// is idempotent on the paper's natural key: re-ingesting the same work
// returns the existing paper's ID instead of creating a duplicate.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
	"github.com/helixir/paper-discovery-service/internal/repository"
)

// PaperInput is the ingestion payload for one paper.
type PaperInput struct {
	Title         string              `json:"title" validate:"required"`
	Abstract      string              `json:"abstract,omitempty"`
	Year          int                 `json:"year" validate:"required"`
	Venue         string              `json:"venue,omitempty"`
	DOI           string              `json:"doi,omitempty"`
	URL           string              `json:"url,omitempty"`
	PDFURL        string              `json:"pdf_url,omitempty"`
	Authors       []domain.Author     `json:"authors,omitempty"`
	CitationCount int                 `json:"citation_count,omitempty"`
	Sources       []domain.SourceType `json:"sources,omitempty"`
}

// ChunkInput is one full-text chunk supplied with a full-fidelity ingestion.
type ChunkInput struct {
	Index   int    `json:"index"`
	Content string `json:"content" validate:"required"`
	Section string `json:"section,omitempty"`
}

// Result reports the outcome of one ingestion.
type Result struct {
	// PaperID identifies the persisted paper, new or pre-existing.
	PaperID uuid.UUID `json:"paper_id"`

	// Duplicate reports whether the natural key already existed.
	Duplicate bool `json:"duplicate"`

	// JobID identifies the PDF acquisition job enqueued for this paper,
	// if any.
	JobID *uuid.UUID `json:"job_id,omitempty"`
}

// JobEnqueuer schedules background PDF acquisition for an ingested paper.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, paperID uuid.UUID, pdfURL, title string, priority domain.JobPriority) (*domain.PDFJob, error)
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Service ingests papers and schedules PDF acquisition.
type Service struct {
	papers  repository.PaperRepository
	db      TxRunner
	queue   JobEnqueuer
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewService creates an ingest service. db may be nil, in which case
// full-fidelity ingestion writes the paper and its chunks without a
// surrounding transaction. queue may be nil to disable PDF acquisition.
func NewService(
	papers repository.PaperRepository,
	db TxRunner,
	queue JobEnqueuer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		papers:  papers,
		db:      db,
		queue:   queue,
		metrics: metrics,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// IngestLightweight persists paper metadata only.
func (s *Service) IngestLightweight(ctx context.Context, input PaperInput) (*Result, error) {
	return s.ingest(ctx, input, nil, domain.FidelityLightweight)
}

// IngestWithChunks persists the paper together with its full-text chunks.
// The paper row and its chunks are written in one transaction so a partial
// failure leaves no half-ingested paper.
func (s *Service) IngestWithChunks(ctx context.Context, input PaperInput, chunks []ChunkInput) (*Result, error) {
	if len(chunks) == 0 {
		return nil, invalidPaperData("at least one chunk is required for full ingestion")
	}
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			return nil, invalidPaperData(fmt.Sprintf("chunk at index %d has no content", i))
		}
	}
	return s.ingest(ctx, input, chunks, domain.FidelityFull)
}

func (s *Service) ingest(ctx context.Context, input PaperInput, chunks []ChunkInput, fidelity domain.Fidelity) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	paper := buildPaper(input, fidelity)

	var created bool
	var err error
	if s.db != nil {
		err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
			txRepo := repository.NewPgPaperRepository(tx)
			return s.persist(ctx, txRepo, paper, chunks, &created)
		})
	} else {
		err = s.persist(ctx, s.papers, paper, chunks, &created)
	}
	if err != nil {
		return nil, err
	}

	if created {
		s.metrics.PapersIngested.WithLabelValues(string(fidelity)).Inc()
	} else {
		s.metrics.IngestDuplicates.Inc()
	}

	result := &Result{PaperID: paper.ID, Duplicate: !created}

	if jobID := s.maybeEnqueuePDF(ctx, paper, input.PDFURL); jobID != nil {
		result.JobID = jobID
	}

	s.logger.Info().
		Str("paper_id", paper.ID.String()).
		Str("fidelity", string(fidelity)).
		Bool("duplicate", result.Duplicate).
		Msg("paper ingested")

	return result, nil
}

// persist upserts the paper and, for full fidelity, replaces its chunks.
func (s *Service) persist(ctx context.Context, repo repository.PaperRepository, paper *domain.IngestedPaper, chunks []ChunkInput, created *bool) error {
	_, wasCreated, err := repo.Upsert(ctx, paper)
	if err != nil {
		return err
	}
	*created = wasCreated

	if len(chunks) > 0 {
		contentChunks := make([]domain.ContentChunk, len(chunks))
		for i, chunk := range chunks {
			contentChunks[i] = domain.ContentChunk{
				PaperID: paper.ID,
				Index:   chunk.Index,
				Content: chunk.Content,
				Section: chunk.Section,
			}
		}
		if err := repo.ReplaceChunks(ctx, paper.ID, contentChunks); err != nil {
			return err
		}
	}
	return nil
}

// maybeEnqueuePDF schedules background PDF acquisition when a PDF URL is
// known and no successful extraction exists yet. Enqueue failures never fail
// the ingestion.
func (s *Service) maybeEnqueuePDF(ctx context.Context, paper *domain.IngestedPaper, pdfURL string) *uuid.UUID {
	if s.queue == nil || pdfURL == "" || paper.HasExtractedPDF() {
		return nil
	}

	job, err := s.queue.Enqueue(ctx, paper.ID, pdfURL, paper.Title, domain.JobPriorityNormal)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			s.logger.Debug().
				Str("paper_id", paper.ID.String()).
				Msg("pdf job already queued for paper")
			return nil
		}
		s.logger.Warn().
			Err(err).
			Str("paper_id", paper.ID.String()).
			Msg("failed to enqueue pdf job")
		return nil
	}
	return &job.ID
}

func buildPaper(input PaperInput, fidelity domain.Fidelity) *domain.IngestedPaper {
	doi := domain.NormalizeDOI(input.DOI)
	var sources []domain.SourceType
	for _, src := range input.Sources {
		if domain.IsKnownSource(src) {
			sources = append(sources, src)
		}
	}
	return &domain.IngestedPaper{
		NaturalKey:    domain.NaturalKey(input.DOI, input.Title, input.Year),
		Title:         strings.TrimSpace(input.Title),
		Abstract:      input.Abstract,
		Year:          input.Year,
		Venue:         input.Venue,
		DOI:           doi,
		URL:           input.URL,
		Authors:       input.Authors,
		CitationCount: input.CitationCount,
		Sources:       sources,
		Fidelity:      fidelity,
	}
}

func validateInput(input PaperInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return invalidPaperData("title is required")
	}
	if input.Year <= 0 {
		return invalidPaperData("year is required")
	}
	if input.Year > time.Now().Year()+1 {
		return invalidPaperData("year is in the future")
	}
	if input.CitationCount < 0 {
		return invalidPaperData("citation count must not be negative")
	}
	return nil
}

func invalidPaperData(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidPaperData, msg)
}
