package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

const paperColumns = `id, natural_key, title, abstract, year, venue, doi, url,
	authors, citation_count, sources, fidelity, pdf_metadata,
	created_at, updated_at`

// Upsert inserts a paper or, when the natural key is already present, merges
// the new record into the existing row and returns its identity. The xmax
// trick distinguishes a fresh insert from a conflict update.
func (r *PgPaperRepository) Upsert(ctx context.Context, paper *domain.IngestedPaper) (*domain.IngestedPaper, bool, error) {
	if paper == nil {
		return nil, false, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.NaturalKey == "" {
		return nil, false, domain.NewValidationError("natural_key", "natural key is required")
	}

	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal authors: %w", err)
	}
	sourcesJSON, err := json.Marshal(paper.Sources)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal sources: %w", err)
	}
	var pdfJSON []byte
	if paper.PDF != nil {
		pdfJSON, err = json.Marshal(paper.PDF)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal pdf metadata: %w", err)
		}
	}

	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO papers (
			id, natural_key, title, abstract, year, venue, doi, url,
			authors, citation_count, sources, fidelity, pdf_metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14
		)
		ON CONFLICT (natural_key) DO UPDATE SET
			abstract = CASE WHEN length(EXCLUDED.abstract) > length(papers.abstract)
				THEN EXCLUDED.abstract ELSE papers.abstract END,
			venue = COALESCE(NULLIF(EXCLUDED.venue, ''), papers.venue),
			doi = COALESCE(NULLIF(EXCLUDED.doi, ''), papers.doi),
			url = COALESCE(NULLIF(EXCLUDED.url, ''), papers.url),
			citation_count = GREATEST(EXCLUDED.citation_count, papers.citation_count),
			sources = EXCLUDED.sources,
			fidelity = CASE WHEN EXCLUDED.fidelity = 'full'
				THEN EXCLUDED.fidelity ELSE papers.fidelity END,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, pdf_metadata, (xmax = 0) AS inserted`

	var created bool
	var storedPDF []byte
	err = r.db.QueryRow(ctx, query,
		paper.ID,
		paper.NaturalKey,
		paper.Title,
		paper.Abstract,
		paper.Year,
		paper.Venue,
		paper.DOI,
		paper.URL,
		authorsJSON,
		paper.CitationCount,
		sourcesJSON,
		paper.Fidelity,
		pdfJSON,
		now,
	).Scan(&paper.ID, &paper.CreatedAt, &paper.UpdatedAt, &storedPDF, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert paper: %w", err)
	}

	// A conflicting row may already carry extraction results that the
	// caller needs for the re-enqueue decision.
	if len(storedPDF) > 0 {
		paper.PDF = &domain.PDFMetadata{}
		if err := json.Unmarshal(storedPDF, paper.PDF); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal pdf metadata: %w", err)
		}
	}

	return paper, created, nil
}

// GetByID retrieves a paper by its UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.IngestedPaper, error) {
	query := fmt.Sprintf(`SELECT %s FROM papers WHERE id = $1`, paperColumns)

	paper, err := scanIngestedPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}
	return paper, nil
}

// GetByNaturalKey retrieves a paper by its natural key.
func (r *PgPaperRepository) GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.IngestedPaper, error) {
	if naturalKey == "" {
		return nil, domain.NewValidationError("natural_key", "natural key is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM papers WHERE natural_key = $1`, paperColumns)

	paper, err := scanIngestedPaper(r.db.QueryRow(ctx, query, naturalKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", naturalKey)
		}
		return nil, fmt.Errorf("failed to get paper by natural key: %w", err)
	}
	return paper, nil
}

// List retrieves papers matching the filter, newest first.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.IngestedPaper, int64, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf("sources @> $%d", argIndex))
		sourceJSON, err := json.Marshal([]domain.SourceType{*filter.Source})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal source filter: %w", err)
		}
		args = append(args, sourceJSON)
		argIndex++
	}
	if filter.Fidelity != nil {
		conditions = append(conditions, fmt.Sprintf("fidelity = $%d", argIndex))
		args = append(args, *filter.Fidelity)
		argIndex++
	}
	if filter.HasPDF != nil {
		if *filter.HasPDF {
			conditions = append(conditions, "pdf_metadata IS NOT NULL")
		} else {
			conditions = append(conditions, "pdf_metadata IS NULL")
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM papers %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM papers %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paperColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]*domain.IngestedPaper, 0, filter.Limit)
	for rows.Next() {
		paper, err := scanIngestedPaper(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, totalCount, nil
}

// UpdatePDFMetadata records a successful PDF acquisition on the paper.
func (r *PgPaperRepository) UpdatePDFMetadata(ctx context.Context, paperID uuid.UUID, meta *domain.PDFMetadata) error {
	if meta == nil {
		return domain.NewValidationError("pdf_metadata", "metadata cannot be nil")
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal pdf metadata: %w", err)
	}

	query := `UPDATE papers SET pdf_metadata = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, metaJSON, time.Now().UTC(), paperID)
	if err != nil {
		return fmt.Errorf("failed to update pdf metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", paperID.String())
	}
	return nil
}

// ReplaceChunks deletes any existing chunks for the paper and inserts the
// given set in a single batched roundtrip.
func (r *PgPaperRepository) ReplaceChunks(ctx context.Context, paperID uuid.UUID, chunks []domain.ContentChunk) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM content_chunks WHERE paper_id = $1`, paperID); err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO content_chunks (id, paper_id, chunk_index, content, section, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range chunks {
		chunk := &chunks[i]
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		batch.Queue(query, chunk.ID, paperID, chunk.Index, chunk.Content, chunk.Section, now)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk at index %d: %w", i, err)
		}
	}
	return nil
}

// GetChunks retrieves a paper's content chunks ordered by index.
func (r *PgPaperRepository) GetChunks(ctx context.Context, paperID uuid.UUID) ([]domain.ContentChunk, error) {
	query := `
		SELECT id, paper_id, chunk_index, content, section, created_at
		FROM content_chunks
		WHERE paper_id = $1
		ORDER BY chunk_index`

	rows, err := r.db.Query(ctx, query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.ContentChunk
	for rows.Next() {
		var chunk domain.ContentChunk
		if err := rows.Scan(&chunk.ID, &chunk.PaperID, &chunk.Index, &chunk.Content, &chunk.Section, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return chunks, nil
}

// ingestedPaperScanDest holds the destination pointers for scanning a paper row.
type ingestedPaperScanDest struct {
	paper       domain.IngestedPaper
	authorsJSON []byte
	sourcesJSON []byte
	pdfJSON     []byte
}

func (d *ingestedPaperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.NaturalKey, &d.paper.Title, &d.paper.Abstract,
		&d.paper.Year, &d.paper.Venue, &d.paper.DOI, &d.paper.URL,
		&d.authorsJSON, &d.paper.CitationCount, &d.sourcesJSON, &d.paper.Fidelity,
		&d.pdfJSON, &d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

func (d *ingestedPaperScanDest) finalize() (*domain.IngestedPaper, error) {
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}
	if len(d.sourcesJSON) > 0 {
		if err := json.Unmarshal(d.sourcesJSON, &d.paper.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	if len(d.pdfJSON) > 0 {
		d.paper.PDF = &domain.PDFMetadata{}
		if err := json.Unmarshal(d.pdfJSON, d.paper.PDF); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pdf metadata: %w", err)
		}
	}
	return &d.paper, nil
}

// scanIngestedPaper scans a single row into an IngestedPaper.
func scanIngestedPaper(row pgx.Row) (*domain.IngestedPaper, error) {
	var dest ingestedPaperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
