package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/understand"
)

// RetrieverConfig configures the retrieval pipeline.
type RetrieverConfig struct {
	// CallTimeout bounds each external call (filter extraction,
	// embedding, vector query, result summarization). Defaults to 10
	// seconds.
	CallTimeout time.Duration

	// DefaultTopK is used when the extracted filter carries no result
	// count. Defaults to memory.DefaultTopK.
	DefaultTopK int
}

func (c *RetrieverConfig) defaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.DefaultTopK < 1 {
		c.DefaultTopK = memory.DefaultTopK
	}
}

// Result is an ordered retrieval answer. Summary is empty when a single
// record matched, when nothing matched, or when summarization degraded.
type Result struct {
	Records []*memory.Record
	Summary string
}

// Retriever turns a finalized "retrieve" utterance into a filtered,
// ranked set of records, optionally summarized into prose. Retrieval is
// synchronous to its triggering request.
type Retriever struct {
	understanding understand.Service
	embedder      memory.Embedder
	store         memory.Store
	cfg           RetrieverConfig
}

// NewRetriever creates a retriever.
func NewRetriever(svc understand.Service, embedder memory.Embedder, store memory.Store, cfg RetrieverConfig) *Retriever {
	cfg.defaults()
	return &Retriever{
		understanding: svc,
		embedder:      embedder,
		store:         store,
		cfg:           cfg,
	}
}

// Retrieve extracts filters, embeds the query, and runs the scoped
// vector search. Filter extraction, embed, and query failures are
// RetrievalErrors naming the failed stage; only summarization is
// optional and degrades to raw records.
func (r *Retriever) Retrieve(ctx context.Context, userID, text string) (*Result, error) {
	filter, err := r.extractFilter(ctx, text)
	if err != nil {
		return nil, &RetrievalError{Stage: "filter", Err: err}
	}

	vec, err := r.embed(ctx, text)
	if err != nil {
		return nil, &RetrievalError{Stage: "embed", Err: err}
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	records, err := r.store.Query(qctx, userID, vec, filter)
	if err != nil {
		return nil, &RetrievalError{Stage: "query", Err: err}
	}

	res := &Result{Records: records}
	if len(records) > 1 {
		res.Summary = r.summarize(ctx, records)
	}
	log.Printf("[RETRIEVER] %d memories for user %s (types=%v, top_k=%d)",
		len(records), userID, filter.Types, filter.TopK)
	return res, nil
}

func (r *Retriever) extractFilter(ctx context.Context, text string) (memory.Filter, error) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	filter, err := r.understanding.ExtractFilters(fctx, text)
	if err != nil {
		return memory.Filter{}, err
	}
	if filter.TopK < 1 {
		filter.TopK = r.cfg.DefaultTopK
	}
	return filter, nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.embedder.Embed(ectx, text)
}

func (r *Retriever) summarize(ctx context.Context, records []*memory.Record) string {
	sctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	summary, err := r.understanding.SummarizeResults(sctx, records)
	if err != nil {
		log.Printf("[RETRIEVER] Result summarization failed, returning raw records: %v", err)
		return ""
	}
	return summary
}
