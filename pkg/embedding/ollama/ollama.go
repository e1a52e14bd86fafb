// Package ollama provides an embedding provider backed by a local Ollama
// server. Only standard library packages are used — no additional
// dependency is required beyond net/http and encoding/json, the same
// dependency-free shape the nomic/voyage/localtei providers follow.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docleaai/doclea/pkg/embedding"
)

// DefaultBaseURL is the default base URL for a locally running Ollama
// instance.
const DefaultBaseURL = "http://localhost:11434"

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider using a local Ollama server.
//
// Dimension resolution order: an explicit WithDimensions value, then the
// built-in knownDimensions table, then a one-time probe embed whose vector
// length is cached for the Provider's lifetime.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dimensions int
	detectOnce sync.Once
}

type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDimensions pre-sets the embedding dimension, bypassing the look-up
// table and the probe request.
func WithDimensions(dims int) Option {
	return func(c *config) { c.dimensions = dims }
}

// New constructs a new Ollama Provider. baseURL defaults to
// [DefaultBaseURL] when empty. model must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embedding: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	p := &Provider{baseURL: baseURL, model: model, httpClient: httpClient, dimensions: cfg.dimensions}
	if p.dimensions == 0 {
		p.dimensions = knownDimensions(model)
	}
	return p, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.callEmbed(ctx, []string{text}, embedding.PhaseSingle)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: "empty response", Phase: embedding.PhaseSingle}
	}
	if err := embedding.ValidateVector(vecs[0], p.Dimensions()); err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embedding.Provider by sending every input in a
// single /api/embed call, which accepts multiple inputs.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.callEmbed(ctx, texts, embedding.PhaseBatch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vecs)), Phase: embedding.PhaseBatch}
	}
	return vecs, nil
}

// Dimensions implements embedding.Provider.
func (p *Provider) Dimensions() int {
	if p.dimensions != 0 {
		return p.dimensions
	}
	p.detectOnce.Do(func() {
		vecs, err := p.callEmbed(context.Background(), []string{"probe"}, embedding.PhaseSingle)
		if err == nil && len(vecs) > 0 {
			p.dimensions = len(vecs[0])
		}
	})
	return p.dimensions
}

// ModelID implements embedding.Provider.
func (p *Provider) ModelID() string { return p.model }

// Name implements embedding.Provider.
func (p *Provider) Name() string { return "ollama" }

func (p *Provider) callEmbed(ctx context.Context, texts []string, phase embedding.EmbedPhase) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("ollama embedding: decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: "empty embeddings in response", Phase: phase}
	}
	return result.Embeddings, nil
}

// knownDimensions returns the well-known output dimension for recognised
// Ollama embedding model names. Returns 0 for unknown models, triggering
// auto-detection on the first Dimensions() call.
func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	default:
		return 0
	}
}
