package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/understand"
)

// WriterConfig configures the write pipeline.
type WriterConfig struct {
	// StepTimeout bounds the concurrent extraction fan-out (all five
	// sub-steps share the deadline). Defaults to 15 seconds.
	StepTimeout time.Duration

	// InsertAttempts bounds retries of a failed store insert before the
	// record is dropped with an error report. Defaults to 3.
	InsertAttempts int

	// RetryBackoff is the base delay between insert attempts, growing
	// linearly per attempt. Defaults to 500ms.
	RetryBackoff time.Duration

	// QueueSize is the capacity of the async insert queue. Defaults
	// to 32.
	QueueSize int
}

func (c *WriterConfig) defaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 15 * time.Second
	}
	if c.InsertAttempts <= 0 {
		c.InsertAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
}

// Writer turns a finalized "save" utterance into a persisted,
// vector-indexed record. Extraction runs as a fan-out joined before
// anything persists; the store insert itself happens off the
// conversational critical path on a background goroutine.
type Writer struct {
	understanding understand.Service
	embedder      memory.Embedder
	store         memory.Store
	cfg           WriterConfig

	inserts chan *memory.Record
	errs    chan error
	wg      sync.WaitGroup
}

// NewWriter creates a writer and starts its background inserter.
func NewWriter(svc understand.Service, embedder memory.Embedder, store memory.Store, cfg WriterConfig) *Writer {
	cfg.defaults()
	w := &Writer{
		understanding: svc,
		embedder:      embedder,
		store:         store,
		cfg:           cfg,
		inserts:       make(chan *memory.Record, cfg.QueueSize),
		errs:          make(chan error, 16),
	}
	w.wg.Add(1)
	go w.insertLoop()
	return w
}

// Write runs the five extraction sub-steps concurrently over the same
// input text, joins them, and queues the assembled record for
// insertion. Any sub-step failure aborts the whole write: nothing is
// persisted and the failing step is named in the returned WriteError.
//
// The returned record has its ID and CreatedAt set but may not be
// queryable yet; insert failures surface on Errors.
func (w *Writer) Write(ctx context.Context, userID, text string) (*memory.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StepTimeout)
	defer cancel()

	// The sub-steps depend only on the original text, never on each
	// other, so they fan out. Each goroutine owns its own field pair.
	var (
		memType memory.Type
		summary string
		title   string
		meta    memory.Metadata
		vec     []float32

		typeErr, summaryErr, titleErr, metaErr, embedErr error
	)

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		memType, typeErr = w.understanding.ClassifyType(ctx, text)
	}()
	go func() {
		defer wg.Done()
		summary, summaryErr = w.understanding.Summarize(ctx, text)
	}()
	go func() {
		defer wg.Done()
		title, titleErr = w.understanding.Title(ctx, text)
	}()
	go func() {
		defer wg.Done()
		meta, metaErr = w.understanding.ExtractMetadata(ctx, text)
	}()
	go func() {
		defer wg.Done()
		vec, embedErr = w.embedder.Embed(ctx, text)
	}()
	wg.Wait()

	for _, step := range []struct {
		name string
		err  error
	}{
		{"classify-type", typeErr},
		{"summarize", summaryErr},
		{"title", titleErr},
		{"metadata", metaErr},
		{"embed", embedErr},
	} {
		if step.err != nil {
			return nil, &WriteError{Step: step.name, Err: step.err}
		}
	}

	rec := &memory.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      memType,
		Content:   summary,
		Title:     title,
		Metadata:  meta,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}

	select {
	case w.inserts <- rec:
	case <-ctx.Done():
		return nil, &WriteError{Step: "insert", Err: ctx.Err()}
	}

	log.Printf("[WRITER] Queued memory %q (type=%s) for user %s", rec.Title, rec.Type, userID)
	return rec, nil
}

// insertLoop persists queued records with bounded retries. Failures are
// reported on the error channel, never back into the live session.
func (w *Writer) insertLoop() {
	defer w.wg.Done()
	for rec := range w.inserts {
		var err error
		for attempt := 1; attempt <= w.cfg.InsertAttempts; attempt++ {
			// Each attempt gets its own deadline so a hung store call
			// cannot wedge the inserter and stall every later record.
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.StepTimeout)
			_, err = w.store.Insert(ctx, rec)
			cancel()
			if err == nil {
				break
			}
			log.Printf("[WRITER] Insert attempt %d/%d for %s failed: %v",
				attempt, w.cfg.InsertAttempts, rec.ID, err)
			if attempt < w.cfg.InsertAttempts {
				time.Sleep(w.cfg.RetryBackoff * time.Duration(attempt))
			}
		}
		if err != nil {
			w.report(fmt.Errorf("dropping memory %s after %d attempts: %w",
				rec.ID, w.cfg.InsertAttempts, err))
		}
	}
}

// report delivers an asynchronous insert failure without ever blocking
// the inserter; if nobody is draining Errors, the error is logged.
func (w *Writer) report(err error) {
	select {
	case w.errs <- err:
	default:
		log.Printf("[WRITER] %v (error channel full)", err)
	}
}

// Errors exposes asynchronous insert failures.
func (w *Writer) Errors() <-chan error {
	return w.errs
}

// Close drains the insert queue and stops the inserter. Write must not
// be called after Close.
func (w *Writer) Close() {
	close(w.inserts)
	w.wg.Wait()
	close(w.errs)
}
