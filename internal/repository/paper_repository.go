package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// PaperFilter narrows List queries.
type PaperFilter struct {
	// Source restricts results to papers discovered via the given source.
	Source *domain.SourceType

	// Fidelity restricts results to a single ingestion fidelity.
	Fidelity *domain.Fidelity

	// HasPDF restricts results by presence of extracted PDF metadata.
	HasPDF *bool

	// Limit and Offset paginate results. Limit is clamped to [1, 1000].
	Limit  int
	Offset int
}

// PaperRepository manages persisted papers and their content chunks.
type PaperRepository interface {
	// Upsert inserts a paper keyed by its natural key, or returns the
	// existing row's identity when the key is already present. The second
	// return value reports whether a new row was created. The input's ID,
	// CreatedAt, and UpdatedAt are overwritten from the database.
	Upsert(ctx context.Context, paper *domain.IngestedPaper) (*domain.IngestedPaper, bool, error)

	// GetByID retrieves a paper by its UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IngestedPaper, error)

	// GetByNaturalKey retrieves a paper by its natural key.
	GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.IngestedPaper, error)

	// List retrieves papers matching the filter, newest first, together
	// with the total count of matching rows.
	List(ctx context.Context, filter PaperFilter) ([]*domain.IngestedPaper, int64, error)

	// UpdatePDFMetadata records a successful PDF acquisition on the paper.
	UpdatePDFMetadata(ctx context.Context, paperID uuid.UUID, meta *domain.PDFMetadata) error

	// ReplaceChunks deletes any existing chunks for the paper and inserts
	// the given set. Call inside a transaction together with Upsert for
	// full-fidelity ingestion.
	ReplaceChunks(ctx context.Context, paperID uuid.UUID, chunks []domain.ContentChunk) error

	// GetChunks retrieves a paper's content chunks ordered by index.
	GetChunks(ctx context.Context, paperID uuid.UUID) ([]domain.ContentChunk, error)
}
