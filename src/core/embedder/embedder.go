// Package embedder defines the contract for turning text into
// fixed-dimension vectors and the retry policy shared by its callers.
package embedder

import (
	"context"
)

// Embedder converts an ordered batch of texts into an equal-length,
// order-preserving batch of vectors. A batch either succeeds completely or
// fails completely; callers must not assume alignment after an error.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NotReady returns an Embedder whose every call fails with the given
// configuration error. Used when the embedding backend is not configured so
// that search and ingestion short-circuit until it is corrected.
func NotReady(err error, dim int) Embedder {
	return notReady{err: err, dim: dim}
}

type notReady struct {
	err error
	dim int
}

func (n notReady) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, n.err
}

func (n notReady) Dimension() int { return n.dim }
