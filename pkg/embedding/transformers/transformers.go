// Package transformers provides the "transformers" in-process/local-model
// embedding backend named in spec.md §4.A: a locally hosted
// OpenAI-compatible embeddings endpoint (e.g. a sentence-transformers
// server exposing /v1/embeddings), reached the same dependency-free way as
// the ollama/nomic/voyage/localtei providers.
package transformers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docleaai/doclea/pkg/embedding"
)

// DefaultBaseURL is the default local endpoint for an in-process
// transformers-backed embedding server.
const DefaultBaseURL = "http://localhost:8000"

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider against a local OpenAI-compatible
// embeddings endpoint.
type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithDimensions sets the declared output dimension.
func WithDimensions(dims int) Option { return func(c *config) { c.dimensions = dims } }

// New constructs a new Provider. apiKey may be empty for a local server with
// no authentication.
func New(baseURL, apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("transformers embedding: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{baseURL: baseURL, apiKey: apiKey, model: model, dimensions: cfg.dimensions, httpClient: httpClient}, nil
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.call(ctx, []string{text}, embedding.PhaseSingle)
	if err != nil {
		return nil, err
	}
	if p.dimensions > 0 {
		if err := embedding.ValidateVector(vecs[0], p.dimensions); err != nil {
			return nil, err
		}
	}
	return vecs[0], nil
}

// EmbedBatch implements embedding.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.call(ctx, texts, embedding.PhaseBatch)
}

// Dimensions implements embedding.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements embedding.Provider.
func (p *Provider) ModelID() string { return p.model }

// Name implements embedding.Provider.
func (p *Provider) Name() string { return "transformers" }

func (p *Provider) call(ctx context.Context, texts []string, phase embedding.EmbedPhase) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("transformers embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transformers embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: err.Error(), Phase: phase, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: fmt.Sprintf("status %d", resp.StatusCode), Phase: phase}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("transformers embedding: decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Data)), Phase: phase}
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: fmt.Sprintf("unexpected index %d", d.Index), Phase: phase}
		}
		out[d.Index] = d.Embedding
	}
	if p.dimensions == 0 && len(out) > 0 {
		p.dimensions = len(out[0])
	}
	return out, nil
}
