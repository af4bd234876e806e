// Package embeddings defines the text embedding provider interface used to
// vectorize memories, and the JSON transport its HTTP providers share.
package embeddings

import (
	"context"
	"time"
)

// DefaultTimeout bounds one embedding call when a provider sets none.
const DefaultTimeout = 60 * time.Second

// Embedder turns memory content into vectors. Failures wrap
// vector.ErrEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
