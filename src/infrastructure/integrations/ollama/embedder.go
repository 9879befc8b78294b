package ollama

import (
	"context"

	"contextd/src/core/fault"
)

// Embedder adapts the client to the embedding pipeline's interface.
type Embedder struct {
	client    *Client
	model     string
	dimension int
}

// NewEmbedder binds the client to a model. dimension must match what the
// model produces; it is validated on every batch.
func NewEmbedder(client *Client, model string, dimension int) *Embedder {
	return &Embedder{client: client, model: model, dimension: dimension}
}

// EmbedBatch embeds all texts in one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fault.Validationf("embedding batch must not be empty")
	}
	vectors, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		if len(vec) != e.dimension {
			return nil, fault.Configurationf("model %s returned %d-dimensional vector for input %d, expected %d",
				e.model, len(vec), i, e.dimension)
		}
	}
	return vectors, nil
}

// Dimension returns the configured vector width.
func (e *Embedder) Dimension() int {
	return e.dimension
}
