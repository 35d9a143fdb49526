// Package claude implements the text-understanding service with the
// Anthropic API. Each operation is a single-turn message with a task
// prompt; classification calls respond with a bare label, extraction
// calls respond with a JSON object decoded into the typed shapes.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/harkhq/hark/memory"
	"github.com/harkhq/hark/understand"
)

// Config configures the client.
type Config struct {
	// Model is the Claude model id. Defaults to claude-sonnet-4-20250514.
	Model string

	// MaxTokens caps each response. Defaults to 1024; classification and
	// title calls need far less, summaries stay well under it.
	MaxTokens int64
}

// Client is an understand.Service backed by Claude.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// New creates a client around an existing Anthropic API client.
func New(api *anthropic.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Client{
		api:       api,
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
	}
}

// complete sends one user message under a system prompt and returns the
// concatenated text blocks of the response.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(text.String()), nil
}

const intentPrompt = `You are an intent classifier for a personal memory assistant. Given a user message, classify it into ONE of:

- Save: the user is recording a new memory, idea, task, reminder, or note.
- Retrieve: the user is asking about past memories, ideas, tasks, or reminders.
- Neither: general conversation unrelated to memory storage or retrieval.

Respond ONLY with Save, Retrieve, or Neither.`

// ClassifyIntent maps text to a closed intent. A label the model
// invents counts as IntentOther; only a transport failure is an error.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (understand.Intent, error) {
	label, err := c.complete(ctx, intentPrompt, text)
	if err != nil {
		return understand.IntentOther, err
	}
	if strings.EqualFold(label, "neither") {
		return understand.IntentOther, nil
	}
	return understand.ParseIntent(label), nil
}

const typePrompt = `You are a classifier for a personal memory assistant. Categorize the input text into ONE of these categories:

- Task: actionable items requiring completion with clear outcomes (e.g. "buy groceries", "call the plumber"), typically not tied to a calendar date
- Idea: venture concepts, product ideas, business models, or strategies that could be developed further
- Reminder: time-sensitive notifications about future events, appointments, or deadlines tied to a specific time
- Note: general information, observations, reflections, or insights without a specific action required
- Fact: concrete statements about the user or the world worth remembering verbatim
- Place: locations, venues, or destinations to visit, remember, or explore
- Learn: topics, skills, or subjects to study or research
- Question: inquiries or information gaps requiring future investigation

Respond ONLY with the category name.`

// ClassifyType assigns a memory type; an unrecognized label degrades to
// note, the neutral category.
func (c *Client) ClassifyType(ctx context.Context, text string) (memory.Type, error) {
	label, err := c.complete(ctx, typePrompt, text)
	if err != nil {
		return "", err
	}
	if t, ok := memory.ParseType(label); ok {
		return t, nil
	}
	return memory.TypeNote, nil
}

const summarizePrompt = `You are a text summarizer. Create a concise summary of the provided text, capturing the main points while significantly reducing the length. Be clear and informative without losing important details.`

// Summarize condenses the utterance into stored content.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, summarizePrompt, text)
}

const titlePrompt = `Generate a short, concise title (5-7 words max) that captures the essence of the following text. Respond with the title only.`

// Title generates a short label for the utterance.
func (c *Client) Title(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, titlePrompt, text)
}

const metadataPrompt = `You are a metadata extractor for a personal memory assistant. Analyze the provided text and return ONLY a JSON object with these fields:

- "entities": array of people, places, and organizations mentioned
- "topics": array of main topics or keywords
- "due_date": ISO 8601 date (e.g. "2026-09-01") if the text references a deadline or point in time, else null
- "sentiment": "positive", "negative", or "neutral"`

// ExtractMetadata pulls the fixed-shape metadata out of the utterance.
func (c *Client) ExtractMetadata(ctx context.Context, text string) (memory.Metadata, error) {
	raw, err := c.complete(ctx, metadataPrompt, text)
	if err != nil {
		return memory.Metadata{}, err
	}

	var wire struct {
		Entities  []string `json:"entities"`
		Topics    []string `json:"topics"`
		DueDate   string   `json:"due_date"`
		Sentiment string   `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return memory.Metadata{}, fmt.Errorf("decode metadata response: %w", err)
	}

	meta := memory.Metadata{
		Entities:  wire.Entities,
		Topics:    wire.Topics,
		Sentiment: wire.Sentiment,
	}
	if t, ok := parseDate(wire.DueDate); ok {
		meta.DueDate = &t
	}
	return meta, nil
}

const filtersPrompt = `You are a retrieval filter extractor for a personal memory assistant. Given a user's retrieval request, return ONLY a JSON object with:

- "memory_types": array drawn from "task", "idea", "reminder", "note", "fact", "place", "learn", "question"; empty if the request does not restrict type
- "date_from": ISO 8601 date (e.g. "2026-08-01") if the request bounds the start of a period, else null
- "date_to": ISO 8601 date if the request bounds the end of a period, else null`

// ExtractFilters derives retrieval restrictions from the request text.
func (c *Client) ExtractFilters(ctx context.Context, text string) (memory.Filter, error) {
	raw, err := c.complete(ctx, filtersPrompt, text)
	if err != nil {
		return memory.Filter{}, err
	}

	var wire struct {
		MemoryTypes []string `json:"memory_types"`
		MemoryType  string   `json:"memory_type"`
		DateFrom    string   `json:"date_from"`
		DateTo      string   `json:"date_to"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return memory.Filter{}, fmt.Errorf("decode filter response: %w", err)
	}

	var filter memory.Filter
	labels := wire.MemoryTypes
	if len(labels) == 0 && wire.MemoryType != "" {
		labels = []string{wire.MemoryType}
	}
	for _, label := range labels {
		if t, ok := memory.ParseType(label); ok {
			filter.Types = append(filter.Types, t)
		}
	}
	if t, ok := parseDate(wire.DateFrom); ok {
		filter.From = &t
	}
	if t, ok := parseDate(wire.DateTo); ok {
		filter.To = &t
	}
	return filter, nil
}

const resultsPrompt = `You are a memory summarizer. Given a list of a user's memories, summarize them into a coherent paragraph (2-4 sentences) capturing the major themes and topics.`

// SummarizeResults condenses retrieved records into prose.
func (c *Client) SummarizeResults(ctx context.Context, records []*memory.Record) (string, error) {
	var lines []string
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", rec.Type, rec.Title, rec.Content))
	}
	return c.complete(ctx, resultsPrompt, strings.Join(lines, "\n"))
}

// stripFences removes a markdown code fence the model may wrap JSON in.
// The opening fence may carry a language tag in any casing ("json",
// "JSON"); the tag sits alone on the fence line, so everything up to
// the first newline goes with it.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseDate accepts a bare ISO date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
