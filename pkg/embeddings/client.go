// Package embeddings turns chunk text into fixed-dimension vectors. A single
// Service fronts the configured provider and validates dimensions on the way
// out.
package embeddings

import (
	"context"
)

// Client is implemented by embedding providers.
type Client interface {
	// EmbedDocuments returns one vector per input, in input order.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error)
}
