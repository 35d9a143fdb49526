package main

import (
	"log"
	"os"
	"strconv"
	"time"
)

// config carries every tunable the process reads from the environment.
type config struct {
	anthropicKey string
	model        string

	port        string
	dataPath    string // empty = in-memory store
	defaultUser string

	pauseThreshold time.Duration
	defaultTopK    int
	dimensions     int

	stepTimeout time.Duration
	callTimeout time.Duration
	cacheSize   int64

	// ONNX embedder paths, read only by builds with the onnx tag.
	onnxModelPath     string
	onnxTokenizerPath string
	onnxLibraryPath   string
}

func loadConfig() config {
	return config{
		anthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		model:        os.Getenv("CLAUDE_MODEL"),

		port:        envStr("PORT", "8080"),
		dataPath:    os.Getenv("HARK_DATA_PATH"),
		defaultUser: envStr("HARK_DEFAULT_USER", "00000000-0000-0000-0000-000000000001"),

		pauseThreshold: envDuration("PAUSE_THRESHOLD", 3*time.Second),
		defaultTopK:    envInt("DEFAULT_TOP_K", 5),
		dimensions:     envInt("EMBEDDING_DIMENSIONS", 384),

		stepTimeout: envDuration("STEP_TIMEOUT", 15*time.Second),
		callTimeout: envDuration("CALL_TIMEOUT", 10*time.Second),
		cacheSize:   int64(envInt("EMBED_CACHE_SIZE", 1024)),

		onnxModelPath:     os.Getenv("ONNX_MODEL_PATH"),
		onnxTokenizerPath: os.Getenv("ONNX_TOKENIZER_PATH"),
		onnxLibraryPath:   os.Getenv("ONNX_LIBRARY_PATH"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[CONFIG] Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG] Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
