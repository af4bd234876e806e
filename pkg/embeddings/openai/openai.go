// Package openai implements pkg/embedding's Embedder client for OpenAI
// compatible embedding APIs ({model, input} in, data[0].embedding out).
package openai

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
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultBaseURL is the default OpenAI API URL.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Embedder wraps an OpenAI compatible embeddings endpoint.
type Embedder struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// EmbedderConfig holds configuration for the OpenAI compatible embedder.
type EmbedderConfig struct {
	// BaseURL is either the API root (".../v1") or the full embeddings
	// endpoint (".../v1/embeddings"). Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is sent as a bearer token. Required.
	APIKey string

	// Model defaults to DefaultEmbeddingModel.
	Model string

	// Timeout bounds one call. Defaults to embeddings.DefaultTimeout.
	Timeout time.Duration
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates a new embedder for an OpenAI compatible API.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := base
	if !strings.HasSuffix(endpoint, "/embeddings") {
		endpoint += "/embeddings"
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return &Embedder{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    model,
		httpClient: embeddings.NewHTTPClient(cfg.Timeout),
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	header := http.Header{"Authorization": {"Bearer " + e.apiKey}}

	var resp embedResponse
	if err := embeddings.PostJSON(ctx, e.httpClient, e.endpoint, header, embedRequest{Model: e.model, Input: text}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
