// Package understand defines the text-understanding capability boundary.
//
// Every operation takes plain text (or retrieved records) and returns a
// typed result, so callers can never misread a loosely shaped response.
// The Claude implementation lives in understand/claude; tests use
// in-package fakes.
package understand

import (
	"context"
	"strings"

	"github.com/harkhq/hark/memory"
)

// Intent classifies what a finalized utterance asks the assistant to do.
type Intent string

const (
	// IntentSave means the user is recording a new memory.
	IntentSave Intent = "save"

	// IntentRetrieve means the user is asking about past memories.
	IntentRetrieve Intent = "retrieve"

	// IntentOther is the explicit default: general conversation with no
	// memory action. Ambiguous or failed classification must land here,
	// never on save or retrieve.
	IntentOther Intent = "other"
)

// ParseIntent normalizes a classifier label. Anything that is not
// clearly save or retrieve is IntentOther.
func ParseIntent(s string) Intent {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "save":
		return IntentSave
	case "retrieve":
		return IntentRetrieve
	}
	return IntentOther
}

// Service is the text-understanding capability surface. Implementations
// must tolerate concurrent calls from multiple sessions; callers bound
// every call with a context deadline.
type Service interface {
	// ClassifyIntent decides whether text saves a memory, retrieves
	// past memories, or neither.
	ClassifyIntent(ctx context.Context, text string) (Intent, error)

	// ClassifyType assigns a memory type to text being saved.
	ClassifyType(ctx context.Context, text string) (memory.Type, error)

	// Summarize condenses text into the content stored on a record.
	Summarize(ctx context.Context, text string) (string, error)

	// Title produces a short human label for text.
	Title(ctx context.Context, text string) (string, error)

	// ExtractMetadata pulls entities, topics, due date and sentiment
	// out of text.
	ExtractMetadata(ctx context.Context, text string) (memory.Metadata, error)

	// ExtractFilters derives type/date restrictions and a result count
	// from a retrieval request. A zero Filter means unrestricted.
	ExtractFilters(ctx context.Context, text string) (memory.Filter, error)

	// SummarizeResults condenses retrieved records into a short prose
	// answer.
	SummarizeResults(ctx context.Context, records []*memory.Record) (string, error)
}
