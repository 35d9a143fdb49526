// Package pipeline routes finalized utterances by intent and runs the
// save and retrieve pipelines against the understanding service and the
// vector store.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/understand"
)

// Outcome reports where an utterance was dispatched.
type Outcome string

const (
	// OutcomeSaved means the writer accepted the utterance; persistence
	// completes asynchronously.
	OutcomeSaved Outcome = "saved"

	// OutcomeRetrieved means the retriever answered the utterance.
	OutcomeRetrieved Outcome = "retrieved"

	// OutcomeIgnored means the utterance was dropped: intent OTHER,
	// classification failure, or a pipeline error. Dropping is always
	// the failure default; a failed classification never saves or
	// retrieves.
	OutcomeIgnored Outcome = "ignored"
)

// RouterConfig configures intent routing.
type RouterConfig struct {
	// ClassifyTimeout bounds the intent classification call. Defaults
	// to 10 seconds.
	ClassifyTimeout time.Duration
}

// Option configures optional router behavior.
type Option func(*Router)

// WithRetrievalHook registers a callback invoked with each successful
// retrieval result (e.g. to speak it back or push it to a client).
func WithRetrievalHook(hook func(userID string, res *Result)) Option {
	return func(r *Router) {
		r.onRetrieved = hook
	}
}

// WithSaveHook registers a callback invoked with each accepted record.
func WithSaveHook(hook func(userID string, rec *memory.Record)) Option {
	return func(r *Router) {
		r.onSaved = hook
	}
}

// Router classifies finalized utterances and dispatches them to the
// writer or retriever.
type Router struct {
	understanding understand.Service
	writer        *Writer
	retriever     *Retriever
	cfg           RouterConfig

	onSaved     func(userID string, rec *memory.Record)
	onRetrieved func(userID string, res *Result)
}

// NewRouter creates a router.
func NewRouter(svc understand.Service, writer *Writer, retriever *Retriever, cfg RouterConfig, opts ...Option) *Router {
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 10 * time.Second
	}
	r := &Router{
		understanding: svc,
		writer:        writer,
		retriever:     retriever,
		cfg:           cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies text and runs the matching pipeline. All failure
// paths end in OutcomeIgnored with no persistence and no retrieval side
// effect.
func (r *Router) Route(ctx context.Context, userID, text string) Outcome {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.ClassifyTimeout)
	intent, err := r.understanding.ClassifyIntent(cctx, text)
	cancel()
	if err != nil {
		log.Printf("[ROUTER] Intent classification failed, dropping utterance: %v", err)
		return OutcomeIgnored
	}

	switch intent {
	case understand.IntentSave:
		rec, err := r.writer.Write(ctx, userID, text)
		if err != nil {
			log.Printf("[ROUTER] Save pipeline aborted: %v", err)
			return OutcomeIgnored
		}
		if r.onSaved != nil {
			r.onSaved(userID, rec)
		}
		return OutcomeSaved

	case understand.IntentRetrieve:
		res, err := r.retriever.Retrieve(ctx, userID, text)
		if err != nil {
			log.Printf("[ROUTER] Retrieval failed, no results available: %v", err)
			return OutcomeIgnored
		}
		if r.onRetrieved != nil {
			r.onRetrieved(userID, res)
		}
		return OutcomeRetrieved

	default:
		log.Printf("[ROUTER] Intent %s, no memory action", intent)
		return OutcomeIgnored
	}
}

// HandleUtterance adapts Route to the session manager's sink signature.
func (r *Router) HandleUtterance(userID, text string) {
	r.Route(context.Background(), userID, text)
}
