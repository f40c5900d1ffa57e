package pdfqueue

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
)

// Shared across the package's tests; prometheus collectors register globally.
var testMetrics = observability.NewMetrics("pdfqueue_test")

type stubExtractor struct {
	method domain.ExtractionMethod
	result *Extraction
	err    error
	calls  int
}

func (s *stubExtractor) Method() domain.ExtractionMethod { return s.method }

func (s *stubExtractor) Extract(_ context.Context, _ Input) (*Extraction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newChain(t *testing.T, minConfidence domain.Confidence, extractors ...Extractor) *Chain {
	t.Helper()
	return NewChain(extractors, minConfidence, testMetrics, zerolog.Nop())
}

func chainInput() Input {
	return Input{Job: &domain.PDFJob{}, Content: []byte("%PDF-1.4")}
}

func TestChainFirstSufficientResultWins(t *testing.T) {
	first := &stubExtractor{
		method: domain.ExtractionMethodOpenAccess,
		result: &Extraction{Text: "open access text", Method: domain.ExtractionMethodOpenAccess, Confidence: domain.ConfidenceHigh},
	}
	second := &stubExtractor{
		method: domain.ExtractionMethodStructured,
		result: &Extraction{Text: "parser text", Method: domain.ExtractionMethodStructured, Confidence: domain.ConfidenceHigh},
	}

	result, err := newChain(t, domain.ConfidenceMedium, first, second).Extract(context.Background(), chainInput())
	require.NoError(t, err)

	assert.Equal(t, "open access text", result.Text)
	assert.Equal(t, domain.ExtractionMethodOpenAccess, result.Method)
	assert.Equal(t, 0, second.calls)
}

func TestChainSkipsFailuresAndLowConfidence(t *testing.T) {
	failing := &stubExtractor{
		method: domain.ExtractionMethodOpenAccess,
		err:    fmt.Errorf("no DOI"),
	}
	weak := &stubExtractor{
		method: domain.ExtractionMethodTextLayer,
		result: &Extraction{Text: "garbled", Method: domain.ExtractionMethodTextLayer, Confidence: domain.ConfidenceLow},
	}
	ocr := &stubExtractor{
		method: domain.ExtractionMethodOCR,
		result: &Extraction{Text: "ocr text", Method: domain.ExtractionMethodOCR, Confidence: domain.ConfidenceMedium},
	}

	result, err := newChain(t, domain.ConfidenceMedium, failing, weak, ocr).Extract(context.Background(), chainInput())
	require.NoError(t, err)

	assert.Equal(t, domain.ExtractionMethodOCR, result.Method)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, weak.calls)
}

func TestChainAllStrategiesExhausted(t *testing.T) {
	failing := &stubExtractor{method: domain.ExtractionMethodTextLayer, err: fmt.Errorf("no text")}
	weak := &stubExtractor{
		method: domain.ExtractionMethodOCR,
		result: &Extraction{Text: "noise", Method: domain.ExtractionMethodOCR, Confidence: domain.ConfidenceLow},
	}

	_, err := newChain(t, domain.ConfidenceHigh, failing, weak).Extract(context.Background(), chainInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestChainRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubExtractor{
		method: domain.ExtractionMethodTextLayer,
		result: &Extraction{Text: "text", Method: domain.ExtractionMethodTextLayer, Confidence: domain.ConfidenceHigh},
	}

	_, err := newChain(t, domain.ConfidenceLow, stub).Extract(ctx, chainInput())
	require.Error(t, err)
	assert.Equal(t, 0, stub.calls)
}

func pdfWithStream(stream []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n1 0 obj\n<< /Length 100 >>\nstream\n")
	buf.Write(stream)
	buf.WriteString("\nendstream\nendobj\n%%EOF")
	return buf.Bytes()
}

func TestTextLayerExtractorPlainStream(t *testing.T) {
	content := pdfWithStream([]byte("BT /F1 12 Tf (Attention Is All) Tj (You Need) Tj ET"))

	result, err := NewTextLayerExtractor().Extract(context.Background(), Input{
		Job:     &domain.PDFJob{},
		Content: content,
	})
	require.NoError(t, err)

	assert.Equal(t, "Attention Is All You Need", result.Text)
	assert.Equal(t, domain.ExtractionMethodTextLayer, result.Method)
	assert.Equal(t, domain.ConfidenceMedium, result.Confidence)
}

func TestTextLayerExtractorFlateStream(t *testing.T) {
	var compressed bytes.Buffer
	writer := zlib.NewWriter(&compressed)
	_, err := writer.Write([]byte("BT (compressed abstract text) Tj ET"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	result, err := NewTextLayerExtractor().Extract(context.Background(), Input{
		Job:     &domain.PDFJob{},
		Content: pdfWithStream(compressed.Bytes()),
	})
	require.NoError(t, err)

	assert.Equal(t, "compressed abstract text", result.Text)
}

func TestTextLayerExtractorNoText(t *testing.T) {
	_, err := NewTextLayerExtractor().Extract(context.Background(), Input{
		Job:     &domain.PDFJob{},
		Content: pdfWithStream([]byte{0x00, 0x01, 0x02, 0x03}),
	})
	require.Error(t, err)

	_, err = NewTextLayerExtractor().Extract(context.Background(), Input{Job: &domain.PDFJob{}})
	require.Error(t, err)
}

func TestChunkText(t *testing.T) {
	paperID := uuid.New()

	chunks := chunkText(paperID, "")
	assert.Empty(t, chunks)

	chunks = chunkText(paperID, "short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)

	long := bytes.Repeat([]byte("word "), 1000)
	chunks = chunkText(paperID, string(long))
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.LessOrEqual(t, len(chunk.Content), chunkSize)
		assert.NotEmpty(t, chunk.Content)
	}
}
