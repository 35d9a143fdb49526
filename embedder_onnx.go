//go:build onnx

package main

import (
	"log"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/memory/embedder/onnx"
)

// newEmbedder loads the local all-MiniLM-L6-v2 ONNX embedder.
func newEmbedder(cfg config) (memory.Embedder, func(), error) {
	emb, err := onnx.New(onnx.Config{
		ModelPath:     cfg.onnxModelPath,
		TokenizerPath: cfg.onnxTokenizerPath,
		LibraryPath:   cfg.onnxLibraryPath,
		Dimensions:    cfg.dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Println("[MAIN] Using ONNX embedder (all-MiniLM-L6-v2)")
	return emb, func() {
		if err := emb.Close(); err != nil {
			log.Printf("[MAIN] Closing ONNX embedder: %v", err)
		}
	}, nil
}
