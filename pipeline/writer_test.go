package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/pipeline"
)

func testWriterConfig() pipeline.WriterConfig {
	return pipeline.WriterConfig{
		StepTimeout:    2 * time.Second,
		InsertAttempts: 3,
		RetryBackoff:   time.Millisecond,
	}
}

func TestWriteAssemblesAndPersistsRecord(t *testing.T) {
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	svc := &fakeUnderstanding{
		classifyType: func(ctx context.Context, text string) (memory.Type, error) {
			return memory.TypeTask, nil
		},
		summarize: func(ctx context.Context, text string) (string, error) {
			return "Buy milk tomorrow.", nil
		},
		title: func(ctx context.Context, text string) (string, error) {
			return "Buy milk", nil
		},
		extractMetadata: func(ctx context.Context, text string) (memory.Metadata, error) {
			return memory.Metadata{Topics: []string{"errands"}, DueDate: &due}, nil
		},
	}
	store := newFakeStore()
	w := pipeline.NewWriter(svc, &fakeEmbedder{vec: []float32{1, 2, 3}}, store, testWriterConfig())
	defer w.Close()

	rec, err := w.Write(context.Background(), "u1", "buy milk tomorrow")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if rec.ID == "" || rec.UserID != "u1" {
		t.Errorf("Record identity wrong: %+v", rec)
	}
	if rec.Type != memory.TypeTask || rec.Title != "Buy milk" || rec.Content != "Buy milk tomorrow." {
		t.Errorf("Record fields wrong: %+v", rec)
	}
	if rec.Metadata.DueDate == nil || !rec.Metadata.DueDate.Equal(due) {
		t.Errorf("Metadata lost: %+v", rec.Metadata)
	}
	if len(rec.Embedding) != 3 {
		t.Errorf("Embedding not attached: %v", rec.Embedding)
	}

	// Insertion is asynchronous; wait for the background inserter.
	select {
	case got := <-store.insertedCh:
		if got.ID != rec.ID {
			t.Errorf("Inserted record %s, want %s", got.ID, rec.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Record never reached the store")
	}
}

func TestWriteAbortsWhenSubStepFails(t *testing.T) {
	boom := errors.New("model unavailable")
	svc := &fakeUnderstanding{
		summarize: func(ctx context.Context, text string) (string, error) {
			return "", boom
		},
	}
	store := newFakeStore()
	w := pipeline.NewWriter(svc, &fakeEmbedder{vec: []float32{1}}, store, testWriterConfig())
	defer w.Close()

	_, err := w.Write(context.Background(), "u1", "some thought")
	var werr *pipeline.WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("Write = %v, want WriteError", err)
	}
	if werr.Step != "summarize" {
		t.Errorf("WriteError.Step = %q, want summarize", werr.Step)
	}
	if !errors.Is(err, boom) {
		t.Error("WriteError should wrap the sub-step error")
	}

	time.Sleep(50 * time.Millisecond)
	if n := store.insertCount(); n != 0 {
		t.Errorf("Aborted write persisted %d records, want none", n)
	}
}

func TestWriteAbortsWhenEmbedFails(t *testing.T) {
	store := newFakeStore()
	w := pipeline.NewWriter(&fakeUnderstanding{}, &fakeEmbedder{err: errors.New("embedder down")}, store, testWriterConfig())
	defer w.Close()

	_, err := w.Write(context.Background(), "u1", "text")
	var werr *pipeline.WriteError
	if !errors.As(err, &werr) || werr.Step != "embed" {
		t.Fatalf("Write = %v, want WriteError at embed", err)
	}
	if n := store.insertCount(); n != 0 {
		t.Errorf("Aborted write persisted %d records", n)
	}
}

func TestInsertRetriesThenRecovers(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("transient storage failure")
	store.failN = 2 // first two attempts fail, third succeeds

	w := pipeline.NewWriter(&fakeUnderstanding{}, &fakeEmbedder{vec: []float32{1}}, store, testWriterConfig())
	defer w.Close()

	if _, err := w.Write(context.Background(), "u1", "persist me"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case <-store.insertedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Insert never succeeded despite retry budget")
	}

	select {
	case err := <-w.Errors():
		t.Errorf("Recovered insert should not report an error, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHungInsertTimesOutWithoutWedgingInserter(t *testing.T) {
	store := newFakeStore()
	store.hangN = 3 // every attempt for the first record stalls

	cfg := testWriterConfig()
	cfg.StepTimeout = 50 * time.Millisecond
	w := pipeline.NewWriter(&fakeUnderstanding{}, &fakeEmbedder{vec: []float32{1}}, store, cfg)
	defer w.Close()

	if _, err := w.Write(context.Background(), "u1", "stuck downstream"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case err := <-w.Errors():
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Reported error = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Hung insert was never bounded and reported")
	}

	// The inserter must still be alive for the next record.
	if _, err := w.Write(context.Background(), "u1", "still flowing"); err != nil {
		t.Fatalf("Write after hung insert failed: %v", err)
	}
	select {
	case <-store.insertedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Insert after a hung record never landed")
	}
}

func TestInsertFailureReportedAfterRetryBudget(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("storage down")
	store.failN = -1 // never succeeds

	w := pipeline.NewWriter(&fakeUnderstanding{}, &fakeEmbedder{vec: []float32{1}}, store, testWriterConfig())
	defer w.Close()

	if _, err := w.Write(context.Background(), "u1", "doomed"); err != nil {
		t.Fatalf("Write itself should succeed, got %v", err)
	}

	select {
	case err := <-w.Errors():
		if !errors.Is(err, store.insertErr) {
			t.Errorf("Reported error = %v, want wrapped storage error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Insert failure was never reported")
	}
}
