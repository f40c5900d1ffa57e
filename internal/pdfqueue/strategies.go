package pdfqueue

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/pdf"
)

const maxServiceResponse = 20 * 1024 * 1024

// DefaultChainExtractors builds the standard strategy order: open-access
// lookup, structured parser, embedded text layer, OCR. Strategies whose
// endpoint is not configured are omitted.
func DefaultChainExtractors(cfg config.ExtractionConfig, downloader *pdf.Downloader) []Extractor {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var extractors []Extractor
	if cfg.OpenAccessBaseURL != "" {
		extractors = append(extractors, NewOpenAccessExtractor(cfg.OpenAccessBaseURL, cfg.OpenAccessEmail, client, downloader))
	}
	if cfg.StructuredParserURL != "" {
		extractors = append(extractors, NewStructuredParserExtractor(cfg.StructuredParserURL, client))
	}
	extractors = append(extractors, NewTextLayerExtractor())
	if cfg.OCRServiceURL != "" {
		extractors = append(extractors, NewOCRExtractor(cfg.OCRServiceURL, client))
	}
	return extractors
}

// OpenAccessExtractor resolves a DOI through an Unpaywall-compatible API and
// pulls the text layer from the publisher-hosted open-access PDF.
type OpenAccessExtractor struct {
	baseURL    string
	email      string
	client     *http.Client
	downloader *pdf.Downloader
}

// NewOpenAccessExtractor creates the open-access lookup strategy.
func NewOpenAccessExtractor(baseURL, email string, client *http.Client, downloader *pdf.Downloader) *OpenAccessExtractor {
	return &OpenAccessExtractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		client:     client,
		downloader: downloader,
	}
}

func (e *OpenAccessExtractor) Method() domain.ExtractionMethod {
	return domain.ExtractionMethodOpenAccess
}

func (e *OpenAccessExtractor) Extract(ctx context.Context, input Input) (*Extraction, error) {
	if input.DOI == "" {
		return nil, fmt.Errorf("open access lookup: paper has no DOI")
	}

	lookupURL := fmt.Sprintf("%s/v2/%s?email=%s", e.baseURL, url.PathEscape(input.DOI), url.QueryEscape(e.email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open access lookup: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open access lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open access lookup: status %d", resp.StatusCode)
	}

	var payload struct {
		BestOALocation struct {
			URLForPDF string `json:"url_for_pdf"`
		} `json:"best_oa_location"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxServiceResponse)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open access lookup: decode response: %w", err)
	}
	if payload.BestOALocation.URLForPDF == "" {
		return nil, fmt.Errorf("open access lookup: no open-access PDF for doi %s", input.DOI)
	}

	result, err := e.downloader.Download(ctx, payload.BestOALocation.URLForPDF)
	if err != nil {
		return nil, fmt.Errorf("open access lookup: fetch PDF: %w", err)
	}

	text := extractTextLayer(result.Content)
	if text == "" {
		return nil, fmt.Errorf("open access lookup: open-access PDF has no text layer")
	}

	return &Extraction{Text: text, Method: e.Method(), Confidence: domain.ConfidenceHigh}, nil
}

// StructuredParserExtractor sends the PDF to a GROBID-class sidecar and
// takes its full-text response.
type StructuredParserExtractor struct {
	endpoint string
	client   *http.Client
}

// NewStructuredParserExtractor creates the structured parser strategy.
func NewStructuredParserExtractor(endpoint string, client *http.Client) *StructuredParserExtractor {
	return &StructuredParserExtractor{
		endpoint: strings.TrimRight(endpoint, "/") + "/api/processFulltextDocument",
		client:   client,
	}
}

func (e *StructuredParserExtractor) Method() domain.ExtractionMethod {
	return domain.ExtractionMethodStructured
}

func (e *StructuredParserExtractor) Extract(ctx context.Context, input Input) (*Extraction, error) {
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("structured parser: no PDF content")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("input", "paper.pdf")
	if err != nil {
		return nil, fmt.Errorf("structured parser: %w", err)
	}
	if _, err := part.Write(input.Content); err != nil {
		return nil, fmt.Errorf("structured parser: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("structured parser: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("structured parser: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "text/plain")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("structured parser: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("structured parser: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxServiceResponse))
	if err != nil {
		return nil, fmt.Errorf("structured parser: read response: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("structured parser: empty response")
	}

	return &Extraction{Text: text, Method: e.Method(), Confidence: domain.ConfidenceHigh}, nil
}

// TextLayerExtractor pulls embedded text directly from the PDF content
// streams. It handles uncompressed and zlib-compressed streams, which covers
// most born-digital papers; scanned documents yield nothing and fall through
// to OCR.
type TextLayerExtractor struct{}

// NewTextLayerExtractor creates the embedded text layer strategy.
func NewTextLayerExtractor() *TextLayerExtractor {
	return &TextLayerExtractor{}
}

func (e *TextLayerExtractor) Method() domain.ExtractionMethod {
	return domain.ExtractionMethodTextLayer
}

func (e *TextLayerExtractor) Extract(ctx context.Context, input Input) (*Extraction, error) {
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("text layer: no PDF content")
	}

	text := extractTextLayer(input.Content)
	if text == "" {
		return nil, fmt.Errorf("text layer: no embedded text found")
	}

	return &Extraction{Text: text, Method: e.Method(), Confidence: domain.ConfidenceMedium}, nil
}

// OCRExtractor sends the PDF to an external OCR service. Last resort for
// scanned documents with no text layer.
type OCRExtractor struct {
	endpoint string
	client   *http.Client
}

// NewOCRExtractor creates the OCR strategy.
func NewOCRExtractor(endpoint string, client *http.Client) *OCRExtractor {
	return &OCRExtractor{endpoint: endpoint, client: client}
}

func (e *OCRExtractor) Method() domain.ExtractionMethod {
	return domain.ExtractionMethodOCR
}

func (e *OCRExtractor) Extract(ctx context.Context, input Input) (*Extraction, error) {
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("ocr: no PDF content")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(input.Content))
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxServiceResponse))
	if err != nil {
		return nil, fmt.Errorf("ocr: read response: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("ocr: empty response")
	}

	return &Extraction{Text: text, Method: e.Method(), Confidence: domain.ConfidenceLow}, nil
}

// extractTextLayer scans PDF content streams for text show operators and
// collects their string operands. It decompresses zlib (FlateDecode)
// streams and leaves everything else alone.
func extractTextLayer(content []byte) string {
	var builder strings.Builder

	rest := content
	for {
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			break
		}
		body := rest[start+len("stream"):]
		// Stream keyword is followed by an EOL before the data.
		body = bytes.TrimLeft(body, "\r\n")

		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}

		data := body[:end]
		if decoded, err := inflateStream(data); err == nil {
			data = decoded
		}
		collectShownText(data, &builder)

		rest = body[end+len("endstream"):]
	}

	return strings.TrimSpace(builder.String())
}

func inflateStream(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(io.LimitReader(reader, maxServiceResponse))
}

// collectShownText pulls parenthesized string literals out of a content
// stream. Only literals followed by a text show operator (Tj, TJ, ' or ")
// actually render, but collecting all literals is close enough for search
// and chunking purposes.
func collectShownText(data []byte, builder *strings.Builder) {
	depth := 0
	escaped := false
	var current []byte

	for i := 0; i < len(data); i++ {
		c := data[i]
		if depth == 0 {
			if c == '(' {
				depth = 1
				current = current[:0]
			}
			continue
		}

		if escaped {
			switch c {
			case 'n':
				current = append(current, '\n')
			case 't':
				current = append(current, '\t')
			case 'r', 'b', 'f':
				current = append(current, ' ')
			default:
				current = append(current, c)
			}
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
			current = append(current, c)
		case ')':
			depth--
			if depth == 0 {
				if token := strings.TrimSpace(string(current)); token != "" && isMostlyPrintable(token) {
					builder.WriteString(token)
					builder.WriteByte(' ')
				}
			} else {
				current = append(current, c)
			}
		default:
			current = append(current, c)
		}
	}
}

func isMostlyPrintable(s string) bool {
	printable := 0
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			printable++
		}
	}
	return printable*10 >= len(s)*8
}
