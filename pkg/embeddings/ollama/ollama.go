// Package ollama embeds memories with a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/swarm/pkg/embeddings"
	"github.com/papercomputeco/swarm/pkg/vector"
)

const (
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "nomic-embed-text"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultTimeout leaves room for Ollama to load the model on first use.
	DefaultTimeout = 2 * time.Minute
)

// EmbedderConfig holds configuration for the Ollama embedder.
type EmbedderConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Model defaults to DefaultEmbeddingModel.
	Model string

	// Timeout bounds one call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// KeepAlive is how long Ollama keeps the model loaded after a call, in
	// Ollama duration syntax ("5m", "-1"). Empty uses the server default.
	KeepAlive string

	// NoTruncate makes Ollama reject content longer than the model's
	// context instead of cutting it.
	NoTruncate bool
}

// Embedder calls Ollama's /api/embed.
type Embedder struct {
	endpoint  string
	model     string
	keepAlive string
	truncate  bool
	client    *http.Client
}

type embedRequest struct {
	Model     string `json:"model"`
	Input     string `json:"input"`
	KeepAlive string `json:"keep_alive,omitempty"`
	Truncate  bool   `json:"truncate"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbedder creates an Ollama embedder. The server is not contacted until
// the first Embed.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("ollama base URL %q needs an http:// or https:// scheme", cfg.BaseURL)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Embedder{
		endpoint:  base + "/api/embed",
		model:     model,
		keepAlive: cfg.KeepAlive,
		truncate:  !cfg.NoTruncate,
		client:    embeddings.NewHTTPClient(timeout),
	}, nil
}

// Embed returns the vector of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	err := embeddings.PostJSON(ctx, e.client, e.endpoint, nil, embedRequest{
		Model:     e.model,
		Input:     text,
		KeepAlive: e.keepAlive,
		Truncate:  e.truncate,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: ollama model %s returned no embedding", vector.ErrEmbedding, e.model)
	}
	return resp.Embeddings[0], nil
}

// Close is a no-op; idle connections belong to the shared transport.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
