package memory

import (
	"strings"
	"time"
)

// Type categorizes a memory. The taxonomy follows the assistant's
// note-taking domains; classification output is normalized through
// ParseType so prompt wording never leaks into storage.
type Type string

const (
	TypeTask     Type = "task"
	TypeIdea     Type = "idea" // business/product ideas
	TypeReminder Type = "reminder"
	TypeNote     Type = "note"
	TypeFact     Type = "fact"
	TypePlace    Type = "place"
	TypeLearn    Type = "learn"
	TypeQuestion Type = "question"
)

// AllTypes lists every valid memory type.
var AllTypes = []Type{
	TypeTask, TypeIdea, TypeReminder, TypeNote,
	TypeFact, TypePlace, TypeLearn, TypeQuestion,
}

// ParseType normalizes a free-form type label. It accepts the canonical
// names plus the labels the classifier prompt uses ("Business Idea",
// "Places", ...). Unknown labels return ok=false.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task", "tasks":
		return TypeTask, true
	case "idea", "ideas", "business idea", "business_idea":
		return TypeIdea, true
	case "reminder", "reminders":
		return TypeReminder, true
	case "note", "notes":
		return TypeNote, true
	case "fact", "facts":
		return TypeFact, true
	case "place", "places":
		return TypePlace, true
	case "learn", "learning":
		return TypeLearn, true
	case "question", "questions":
		return TypeQuestion, true
	}
	return "", false
}

// Metadata is the structured metadata extracted from an utterance.
// The shape is deliberately closed: entities, topics, an optional due
// date and a sentiment label. Anything else the extractor produces is
// discarded rather than stored loose.
type Metadata struct {
	Entities []string   `json:"entities,omitempty"`
	Topics   []string   `json:"topics,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// Record is one persisted, vector-indexed memory.
// The ID is assigned by the store on insert if absent. Records are
// immutable once stored.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter restricts a retrieval request. The zero value is unrestricted:
// all types, all dates, default result count.
type Filter struct {
	// Types limits results to the given memory types. Empty means no
	// type restriction.
	Types []Type `json:"types,omitempty"`

	// From and To bound CreatedAt inclusively. Either may be nil.
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`

	// TopK bounds the result size. Values < 1 mean "use the default".
	TopK int `json:"top_k,omitempty"`
}

// Matches reports whether a record passes the type and date
// restrictions. TopK truncation is the store's job, not the filter's.
func (f Filter) Matches(r *Record) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if r.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
