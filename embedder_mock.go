//go:build !onnx

package main

import (
	"log"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/memory/embedder/mock"
)

// newEmbedder returns the deterministic hash embedder. Real semantic
// similarity needs the onnx build tag (or an API embedder); the mock is
// only suitable for local development.
func newEmbedder(cfg config) (memory.Embedder, func(), error) {
	log.Println("[MAIN] Using mock embedder (build with -tags onnx for real embeddings)")
	return mock.New(cfg.dimensions), func() {}, nil
}
