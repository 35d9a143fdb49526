package pipeline

import "fmt"

// WriteError reports an aborted write and the extraction step that
// failed. No partial record is ever persisted behind one.
type WriteError struct {
	Step string // "classify-type", "summarize", "title", "metadata", "embed", "insert"
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("memory write failed at %s: %v", e.Step, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RetrievalError reports a failed retrieval attempt and the stage that
// failed. Callers surface it as "no results available" rather than a
// crash.
type RetrievalError struct {
	Stage string // "filter", "embed", "query"
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
