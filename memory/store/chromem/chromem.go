// Package chromem implements memory.Store on top of chromem-go, an
// embedded pure-Go vector database. The store keeps one collection per
// user for namespace isolation and applies type/date filter pushdown
// and recency tie-breaking before truncating to top-k.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/harkhq/hark/memory"
)

// Config configures the store.
type Config struct {
	// Dimensions is the system-wide embedding dimension. Every insert
	// and query vector must match it. Required.
	Dimensions int

	// Path, when non-empty, makes the store durable on disk via
	// chromem's persistent DB. Empty keeps everything in memory.
	Path string

	// Compress gzips persisted documents. Ignored when Path is empty.
	Compress bool
}

// Store is a chromem-go backed memory.Store.
type Store struct {
	db   *chromem.DB
	dims int

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates a store. With cfg.Path set the contents survive restarts;
// otherwise the store is an in-memory reference implementation.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("chromem store: Dimensions must be positive, got %d", cfg.Dimensions)
	}

	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &Store{
		db:          db,
		dims:        cfg.Dimensions,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the per-user collection, creating it on first use.
func (s *Store) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring the write lock.
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	name := "user_" + userID
	if userID == "" {
		name = "default"
	}

	// Embeddings are always provided by the caller, so no embedding
	// func; chromem's default cosine distance applies.
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}

	s.collections[userID] = col
	return col, nil
}

// Insert appends a record, assigning ID and CreatedAt if unset.
func (s *Store) Insert(ctx context.Context, rec *memory.Record) (string, error) {
	if len(rec.Embedding) != s.dims {
		return "", fmt.Errorf("insert: vector has %d dimensions, store expects %d: %w",
			len(rec.Embedding), s.dims, memory.ErrDimensionMismatch)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	col, err := s.collection(rec.UserID)
	if err != nil {
		return "", err
	}

	meta, err := encodeMetadata(rec)
	if err != nil {
		return "", err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  meta,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	log.Printf("[CHROMEM] Stored record id=%s user=%s type=%s", rec.ID, rec.UserID, rec.Type)
	return rec.ID, nil
}

// Query returns the user's records matching the filter, ordered by
// ascending cosine distance with recency breaking ties.
func (s *Store) Query(ctx context.Context, userID string, vector []float32, filter memory.Filter) ([]*memory.Record, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("query: vector has %d dimensions, store expects %d: %w",
			len(vector), s.dims, memory.ErrDimensionMismatch)
	}

	topK := filter.TopK
	if topK < 1 {
		topK = memory.DefaultTopK
	}

	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults greater than the collection size, and
	// type/date restrictions must be applied before truncation, so
	// fetch every candidate and push the filter down here.
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	type scored struct {
		rec      *memory.Record
		distance float32
	}
	var matched []scored
	for _, res := range results {
		rec, err := decodeResult(res)
		if err != nil {
			log.Printf("[CHROMEM] Skipping undecodable record %s: %v", res.ID, err)
			continue
		}
		if !filter.Matches(rec) {
			continue
		}
		matched = append(matched, scored{rec: rec, distance: 1 - res.Similarity})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].distance != matched[j].distance {
			return matched[i].distance < matched[j].distance
		}
		return matched[i].rec.CreatedAt.After(matched[j].rec.CreatedAt)
	})

	if len(matched) > topK {
		matched = matched[:topK]
	}

	recs := make([]*memory.Record, len(matched))
	for i, m := range matched {
		recs[i] = m.rec
	}
	return recs, nil
}

// Close releases resources. The in-memory DB has nothing to release;
// the persistent DB flushes on every write, so Close is a no-op either
// way.
func (s *Store) Close() error {
	return nil
}

// chromem metadata is flat string-to-string; the record's typed fields
// ride in well-known keys and the structured Metadata as one JSON blob.
const (
	metaKeyUser     = "user_id"
	metaKeyType     = "type"
	metaKeyTitle    = "title"
	metaKeyCreated  = "created_at"
	metaKeyMetadata = "metadata"
)

func encodeMetadata(rec *memory.Record) (map[string]string, error) {
	blob, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return map[string]string{
		metaKeyUser:     rec.UserID,
		metaKeyType:     string(rec.Type),
		metaKeyTitle:    rec.Title,
		metaKeyCreated:  rec.CreatedAt.Format(time.RFC3339Nano),
		metaKeyMetadata: string(blob),
	}, nil
}

func decodeResult(res chromem.Result) (*memory.Record, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, res.Metadata[metaKeyCreated])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	var meta memory.Metadata
	if blob := res.Metadata[metaKeyMetadata]; blob != "" {
		if err := json.Unmarshal([]byte(blob), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &memory.Record{
		ID:        res.ID,
		UserID:    res.Metadata[metaKeyUser],
		Type:      memory.Type(res.Metadata[metaKeyType]),
		Content:   res.Content,
		Title:     res.Metadata[metaKeyTitle],
		Metadata:  meta,
		Embedding: res.Embedding,
		CreatedAt: createdAt,
	}, nil
}
