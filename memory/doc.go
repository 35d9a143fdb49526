// Package memory defines the durable memory model and the storage and
// embedding boundaries of the assistant.
//
// A Record is one persisted memory: condensed content, a short title,
// typed metadata and a fixed-dimension embedding, scoped to a single
// user. Records are created exactly once by the write pipeline and are
// never mutated or deleted by this core.
//
// Architecture:
//   - Store: vector storage backend (chromem-go for the embedded store,
//     pgvector or similar for a hosted deployment)
//   - Embedder: text-to-vector conversion (mock for tests, ONNX with
//     all-MiniLM-L6-v2 for offline use, API embedders in production)
//
// Queries are always scoped by user id first, then restricted by the
// per-request Filter, then ranked by vector distance.
package memory
