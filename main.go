// hark is a voice memory assistant backend: it buffers live
// speech-to-text fragments per session, finalizes utterances on pauses,
// and either saves them as vector-indexed memories or retrieves prior
// memories, driven by intent classification rather than explicit
// commands.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"

	"github.com/harkhq/hark/memory/embedder/cached"
	chromemstore "github.com/harkhq/hark/memory/store/chromem"
	"github.com/harkhq/hark/pipeline"
	"github.com/harkhq/hark/server"
	"github.com/harkhq/hark/session"
	"github.com/harkhq/hark/understand/claude"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	if cfg.anthropicKey == "" {
		log.Fatal("ANTHROPIC_API_KEY environment variable is required")
	}

	// Text understanding.
	api := anthropic.NewClient(option.WithAPIKey(cfg.anthropicKey))
	understanding := claude.New(&api, claude.Config{Model: cfg.model})

	// Embedding, with a ristretto read-through cache in front.
	baseEmbedder, closeEmbedder, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("Embedder setup failed: %v", err)
	}
	defer closeEmbedder()

	embedder, err := cached.New(baseEmbedder, cfg.cacheSize)
	if err != nil {
		log.Fatalf("Embedding cache setup failed: %v", err)
	}
	defer embedder.Close()

	// Vector store.
	store, err := chromemstore.New(chromemstore.Config{
		Dimensions: cfg.dimensions,
		Path:       cfg.dataPath,
	})
	if err != nil {
		log.Fatalf("Vector store setup failed: %v", err)
	}
	defer store.Close()
	if cfg.dataPath != "" {
		log.Printf("[MAIN] Persisting memories under %s", cfg.dataPath)
	} else {
		log.Println("[MAIN] Vector store is in-memory; memories do not survive restarts")
	}

	// Pipelines.
	writer := pipeline.NewWriter(understanding, embedder, store, pipeline.WriterConfig{
		StepTimeout: cfg.stepTimeout,
	})
	retriever := pipeline.NewRetriever(understanding, embedder, store, pipeline.RetrieverConfig{
		CallTimeout: cfg.callTimeout,
		DefaultTopK: cfg.defaultTopK,
	})
	router := pipeline.NewRouter(understanding, writer, retriever, pipeline.RouterConfig{
		ClassifyTimeout: cfg.callTimeout,
	})

	// Asynchronous write failures are reported, not surfaced to the
	// live session.
	go func() {
		for err := range writer.Errors() {
			log.Printf("[MAIN] Memory persistence failure: %v", err)
		}
	}()

	// Session buffering feeding the router.
	sessions := session.NewManager(session.Config{
		PauseThreshold: cfg.pauseThreshold,
		DefaultUserID:  cfg.defaultUser,
	}, router.HandleUtterance)

	srv := server.New(server.Config{Addr: ":" + cfg.port}, sessions)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("[MAIN] Received %s, shutting down", sig)
	}

	// Stop intake first, then flush buffered sessions through the
	// pipelines, then drain queued inserts.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[MAIN] Server shutdown: %v", err)
	}
	sessions.Close()
	writer.Close()
	log.Println("[MAIN] Shutdown complete")
}
