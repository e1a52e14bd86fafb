// Package localtei provides an embedding provider backed by a self-hosted
// HuggingFace Text Embeddings Inference (TEI) server. Dependency-free,
// following the ollama/nomic/voyage shape — a local/self-hosted-style
// provider the teacher would reach for stdlib net/http over a client
// library for.
package localtei

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

// DefaultBaseURL is the default base URL for a locally running TEI server.
const DefaultBaseURL = "http://localhost:8080"

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider using a TEI server's /embed
// endpoint.
type Provider struct {
	baseURL    string
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

// WithDimensions sets the declared output dimension. TEI does not report it
// out of band; when left at zero, it is taken from the length of the first
// embedding received, and Dimensions reports 0 until then.
func WithDimensions(dims int) Option { return func(c *config) { c.dimensions = dims } }

// New constructs a new local-tei Provider. model identifies the deployed
// model for logging only; TEI serves a single model per server instance.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
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

	return &Provider{baseURL: baseURL, model: model, dimensions: cfg.dimensions, httpClient: httpClient}, nil
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.call(ctx, []string{text}, embedding.PhaseSingle)
	if err != nil {
		return nil, err
	}
	v := vecs[0]
	if p.dimensions > 0 {
		if err := embedding.ValidateVector(v, p.dimensions); err != nil {
			return nil, err
		}
	}
	return v, nil
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
func (p *Provider) Name() string { return "local-tei" }

func (p *Provider) call(ctx context.Context, texts []string, phase embedding.EmbedPhase) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("local-tei embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("local-tei embedding: build request: %w", err)
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

	var result [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("local-tei embedding: decode response: %w", err)
	}
	if len(result) != len(texts) {
		return nil, &embedding.EmbedFailure{Provider: p.Name(), Status: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result)), Phase: phase}
	}
	if p.dimensions == 0 && len(result) > 0 {
		p.dimensions = len(result[0])
	}
	return result, nil
}
