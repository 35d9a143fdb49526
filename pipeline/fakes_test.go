package pipeline_test

import (
	"context"
	"sync"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/understand"
)

// fakeUnderstanding implements understand.Service with overridable
// function fields; unset fields return benign defaults.
type fakeUnderstanding struct {
	classifyIntent   func(ctx context.Context, text string) (understand.Intent, error)
	classifyType     func(ctx context.Context, text string) (memory.Type, error)
	summarize        func(ctx context.Context, text string) (string, error)
	title            func(ctx context.Context, text string) (string, error)
	extractMetadata  func(ctx context.Context, text string) (memory.Metadata, error)
	extractFilters   func(ctx context.Context, text string) (memory.Filter, error)
	summarizeResults func(ctx context.Context, records []*memory.Record) (string, error)
}

func (f *fakeUnderstanding) ClassifyIntent(ctx context.Context, text string) (understand.Intent, error) {
	if f.classifyIntent != nil {
		return f.classifyIntent(ctx, text)
	}
	return understand.IntentOther, nil
}

func (f *fakeUnderstanding) ClassifyType(ctx context.Context, text string) (memory.Type, error) {
	if f.classifyType != nil {
		return f.classifyType(ctx, text)
	}
	return memory.TypeNote, nil
}

func (f *fakeUnderstanding) Summarize(ctx context.Context, text string) (string, error) {
	if f.summarize != nil {
		return f.summarize(ctx, text)
	}
	return text, nil
}

func (f *fakeUnderstanding) Title(ctx context.Context, text string) (string, error) {
	if f.title != nil {
		return f.title(ctx, text)
	}
	return "a title", nil
}

func (f *fakeUnderstanding) ExtractMetadata(ctx context.Context, text string) (memory.Metadata, error) {
	if f.extractMetadata != nil {
		return f.extractMetadata(ctx, text)
	}
	return memory.Metadata{}, nil
}

func (f *fakeUnderstanding) ExtractFilters(ctx context.Context, text string) (memory.Filter, error) {
	if f.extractFilters != nil {
		return f.extractFilters(ctx, text)
	}
	return memory.Filter{}, nil
}

func (f *fakeUnderstanding) SummarizeResults(ctx context.Context, records []*memory.Record) (string, error) {
	if f.summarizeResults != nil {
		return f.summarizeResults(ctx, records)
	}
	return "", nil
}

// fakeStore records inserts and serves canned query results. insertErr
// (when set) fails the first failN inserts.
type fakeStore struct {
	mu       sync.Mutex
	inserted []*memory.Record
	queries  []memory.Filter

	insertErr error
	failN     int
	hangN     int // that many Inserts block until their context expires

	queryResult []*memory.Record
	queryErr    error

	insertedCh chan *memory.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{insertedCh: make(chan *memory.Record, 16)}
}

func (s *fakeStore) Insert(ctx context.Context, rec *memory.Record) (string, error) {
	s.mu.Lock()
	if s.hangN > 0 {
		s.hangN--
		s.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	defer s.mu.Unlock()
	if s.insertErr != nil && (s.failN < 0 || s.failN > 0) {
		if s.failN > 0 {
			s.failN--
		}
		return "", s.insertErr
	}
	if rec.ID == "" {
		rec.ID = "generated-id"
	}
	s.inserted = append(s.inserted, rec)
	select {
	case s.insertedCh <- rec:
	default:
	}
	return rec.ID, nil
}

func (s *fakeStore) Query(ctx context.Context, userID string, vector []float32, filter memory.Filter) ([]*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, filter)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryResult, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

func (s *fakeStore) lastQuery() (memory.Filter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return memory.Filter{}, false
	}
	return s.queries[len(s.queries)-1], true
}

// fakeEmbedder returns a fixed vector, or an error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func (e *fakeEmbedder) Dimensions() int { return len(e.vec) }
