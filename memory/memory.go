package memory

import (
	"context"
	"errors"
)

// DefaultTopK is the result count used when a Filter does not set one.
const DefaultTopK = 5

// ErrDimensionMismatch is returned when an embedding's length does not
// match the store's configured dimension. The dimension is fixed
// system-wide; a mismatched vector is always a programming or
// configuration error, never retryable data.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store is the vector storage backend interface.
// Implementations: chromem.Store (embedded), pgvector for production.
// Implementations must be safe for concurrent use; many sessions write
// and query through the same Store.
type Store interface {
	// Insert durably appends a record, assigning an ID if absent, and
	// returns the record's ID. It never mutates existing records.
	Insert(ctx context.Context, rec *Record) (string, error)

	// Query returns records owned by userID that pass the filter,
	// ordered by ascending vector distance to the query vector, ties
	// broken by most recent CreatedAt. The result is truncated to
	// filter.TopK (DefaultTopK when unset); fewer records are returned
	// if fewer match. Query never mutates stored state.
	Query(ctx context.Context, userID string, vector []float32, filter Filter) ([]*Record, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (tests), onnx (local all-MiniLM-L6-v2),
// cached (ristretto wrapper around another Embedder).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
