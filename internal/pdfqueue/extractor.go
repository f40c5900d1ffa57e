package pdfqueue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
)

// Input carries everything an extraction strategy may need.
type Input struct {
	// Job is the acquisition job being processed.
	Job *domain.PDFJob

	// DOI is the paper's normalized DOI, empty when unknown.
	DOI string

	// Content is the downloaded PDF, nil when the primary download failed.
	Content []byte
}

// Extraction is the outcome of one successful strategy.
type Extraction struct {
	// Text is the extracted full text.
	Text string

	// Method identifies the strategy that produced the text.
	Method domain.ExtractionMethod

	// Confidence grades how trustworthy the text is.
	Confidence domain.Confidence
}

// Extractor is one strategy in the fallback chain.
type Extractor interface {
	// Method identifies the strategy.
	Method() domain.ExtractionMethod

	// Extract attempts to produce text for the input. Strategies that do
	// not apply to the input (no DOI, no content) return an error.
	Extract(ctx context.Context, input Input) (*Extraction, error)
}

// Chain runs extractors in order and accepts the first result meeting the
// minimum confidence.
type Chain struct {
	extractors    []Extractor
	minConfidence domain.Confidence
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

// NewChain creates an extraction chain. Extractors run in the given order.
func NewChain(extractors []Extractor, minConfidence domain.Confidence, metrics *observability.Metrics, logger zerolog.Logger) *Chain {
	if minConfidence == "" {
		minConfidence = domain.ConfidenceMedium
	}
	return &Chain{
		extractors:    extractors,
		minConfidence: minConfidence,
		metrics:       metrics,
		logger:        logger.With().Str("component", "extraction_chain").Logger(),
	}
}

// Extract runs the chain. It returns the first extraction whose confidence
// meets the chain minimum; when every strategy fails or falls short, the
// error unwraps to domain.ErrExtractionFailed.
func (c *Chain) Extract(ctx context.Context, input Input) (*Extraction, error) {
	for _, extractor := range c.extractors {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		method := string(extractor.Method())
		result, err := extractor.Extract(ctx, input)
		if err != nil {
			c.metrics.ExtractionAttempts.WithLabelValues(method, "error").Inc()
			c.logger.Debug().
				Err(err).
				Str("method", method).
				Str("job_id", input.Job.ID.String()).
				Msg("extraction strategy failed")
			continue
		}

		if !result.Confidence.AtLeast(c.minConfidence) {
			c.metrics.ExtractionAttempts.WithLabelValues(method, "low_confidence").Inc()
			c.logger.Debug().
				Str("method", method).
				Str("confidence", string(result.Confidence)).
				Str("job_id", input.Job.ID.String()).
				Msg("extraction below confidence threshold")
			continue
		}

		c.metrics.ExtractionAttempts.WithLabelValues(method, "success").Inc()
		return result, nil
	}

	return nil, fmt.Errorf("%w: no strategy met confidence %s", domain.ErrExtractionFailed, c.minConfidence)
}
