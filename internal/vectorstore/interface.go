// Package vectorstore defines the interface for vector storage operations
// and provides Qdrant and chromem-go implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the store service is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrShapeMismatch indicates id/vector/payload sequences of unequal
	// length. Raised before any network call.
	ErrShapeMismatch = errors.New("id/vector/payload length mismatch")

	// ErrDimensionMismatch indicates a vector whose width differs from the
	// collection configuration. Raised before any network call.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// SearchResult is one hit of a similarity query: the stored point id, its
// cosine similarity to the query vector, and the payload stored with it.
type SearchResult struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// Store is the interface for vector storage operations.
//
// Implementations wrap an external similarity-search engine; no indexing or
// ranking happens on this side of the interface. Cosine is the only distance
// metric used.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default, zero external deps)
//   - QdrantStore: external Qdrant server over gRPC
type Store interface {
	// RecreateCollection creates the named collection sized for
	// vectorSize-wide vectors with cosine distance, discarding any
	// existing data under that name. This full-rebuild semantics is
	// intentional; there is no incremental update path.
	RecreateCollection(ctx context.Context, name string, vectorSize int) error

	// Upsert writes (id, vector, payload) triples into a collection. The
	// three slices must have equal length and every vector must match the
	// collection's configured width; violations surface as
	// ErrShapeMismatch / ErrDimensionMismatch before any network call.
	// A triple's id, vector, and payload always travel together; the
	// batch as a whole need not be atomic.
	Upsert(ctx context.Context, collection string, ids []uint64, vectors [][]float32, payloads []map[string]any) error

	// Search returns up to limit results ordered by descending cosine
	// similarity to the query vector.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error)

	// CollectionInfo returns metadata about a collection, or
	// ErrCollectionNotFound.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// Close releases connections and resources held by the store.
	Close() error
}

// validateBatch enforces the upsert shape invariants. It must be called
// before anything reaches the wire.
func validateBatch(ids []uint64, vectors [][]float32, payloads []map[string]any, vectorSize int) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: %d ids, %d vectors, %d payloads",
			ErrShapeMismatch, len(ids), len(vectors), len(payloads))
	}
	for i, v := range vectors {
		if len(v) != vectorSize {
			return fmt.Errorf("%w: vector for id %d has dimension %d, collection expects %d",
				ErrDimensionMismatch, ids[i], len(v), vectorSize)
		}
	}
	return nil
}
