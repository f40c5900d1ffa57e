package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

const (
	// defaultEmbeddingTimeout bounds a single embedding call.
	defaultEmbeddingTimeout = 10 * time.Second

	// maxEmbedChars truncates paper text sent for embedding. Titles plus
	// abstracts beyond this add latency without improving relevance.
	maxEmbedChars = 2000
)

// EmbeddingScorerConfig configures the embedding-based semantic scorer.
type EmbeddingScorerConfig struct {
	// BaseURL is the embedding service endpoint, e.g. "http://embedder:8100".
	BaseURL string

	// Model is the embedding model identifier passed through to the service.
	Model string

	// Timeout bounds a single embedding request.
	Timeout time.Duration
}

// EmbeddingScorer scores semantic relevance as the cosine similarity
// between the topic embedding and each paper's title+abstract embedding,
// computed by an external embedding HTTP service.
type EmbeddingScorer struct {
	config     EmbeddingScorerConfig
	httpClient *http.Client
}

var _ Scorer = (*EmbeddingScorer)(nil)

// NewEmbeddingScorer creates an embedding scorer.
func NewEmbeddingScorer(cfg EmbeddingScorerConfig) *EmbeddingScorer {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultEmbeddingTimeout
	}
	return &EmbeddingScorer{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// embedRequest is the embedding service request body.
type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// embedResponse is the embedding service response body.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Score implements Scorer. The topic and all papers are embedded in a
// single batched request; the cosine similarity is mapped from [-1, 1]
// to [0, 1].
func (s *EmbeddingScorer) Score(ctx context.Context, topic string, papers []domain.CanonicalPaper) ([]float64, error) {
	inputs := make([]string, 0, len(papers)+1)
	inputs = append(inputs, topic)
	for i := range papers {
		inputs = append(inputs, paperText(&papers[i]))
	}

	vectors, err := s.embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(vectors), len(inputs))
	}

	topicVec := vectors[0]
	scores := make([]float64, len(papers))
	for i := range papers {
		scores[i] = (cosine(topicVec, vectors[i+1]) + 1) / 2
	}
	return scores, nil
}

// embed calls the embedding service for a batch of inputs.
func (s *EmbeddingScorer) embed(ctx context.Context, inputs []string) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{Model: s.config.Model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError("embedding service", resp.StatusCode, string(respBody), nil)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 50<<20)).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	vectors := make([][]float64, len(embedResp.Data))
	for _, d := range embedResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// paperText builds the embedding input for one paper.
func paperText(p *domain.CanonicalPaper) string {
	text := p.Title
	if p.Abstract != "" {
		text += "\n" + p.Abstract
	}
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return text
}

// cosine computes the cosine similarity of two vectors. Mismatched or
// zero-magnitude vectors score 0.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
