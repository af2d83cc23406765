// Package embeddings provides image and text embedding via a pretrained
// multimodal encoder served by an external inference process.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input.
	ErrEmptyInput = errors.New("empty or nil input")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrModelUnavailable indicates the embedding backend failed to load
	// the model or run inference. There is no retry policy at this layer.
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// Embedder converts images and text queries into vectors in a shared
// embedding space.
//
// Implementations must be deterministic given identical model weights and
// input, must not mutate inputs, and must fail loudly instead of returning
// placeholder vectors.
type Embedder interface {
	// EmbedImages generates one vector per input image, order preserved.
	EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error)

	// EmbedText generates a single vector for a free-text query, in the
	// same embedding space as image vectors.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector width produced by the current model.
	Dimension() int

	// Close releases resources held by the embedder.
	Close() error
}
