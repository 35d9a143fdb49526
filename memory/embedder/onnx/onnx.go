//go:build onnx

// Package onnx embeds text locally with an all-MiniLM-L6-v2 model via
// ONNX Runtime. It needs the model files and the onnxruntime shared
// library on disk, so it is gated behind the "onnx" build tag; builds
// without the tag use the mock or an API embedder instead.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// Standard BERT sequence length for MiniLM models.
const maxSeqLen = 128

// Config configures the embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file. Required.
	ModelPath string

	// TokenizerPath is the path to the HuggingFace tokenizer.json.
	// Required.
	TokenizerPath string

	// LibraryPath is the path to libonnxruntime.so. Required unless
	// the runtime was already initialized by the process.
	LibraryPath string

	// Dimensions is the embedding size. Defaults to 384, the hidden
	// size of all-MiniLM-L6-v2.
	Dimensions int
}

// Embedder runs sentence embedding inference through ONNX Runtime.
type Embedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
	dims      int
}

// New loads the tokenizer and creates an inference session.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx embedder: ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx embedder: TokenizerPath is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	tokenizer, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Embedder{
		session:   session,
		tokenizer: tokenizer,
		dims:      cfg.Dimensions,
	}, nil
}

// Embed tokenizes text, runs the model and mean-pools the hidden states
// over attended tokens into a unit vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ids := e.tokenizer.tokenize(text)

	inputIDs := make([]int64, maxSeqLen)
	attentionMask := make([]int64, maxSeqLen)
	tokenTypeIDs := make([]int64, maxSeqLen)

	inputIDs[0] = int64(e.tokenizer.clsID)
	attentionMask[0] = 1

	// Truncate to leave room for [CLS] and [SEP].
	if len(ids) > maxSeqLen-2 {
		ids = ids[:maxSeqLen-2]
	}
	for i, id := range ids {
		inputIDs[i+1] = id
		attentionMask[i+1] = 1
	}
	inputIDs[len(ids)+1] = int64(e.tokenizer.sepID)
	attentionMask[len(ids)+1] = 1

	shape := ort.NewShape(1, int64(maxSeqLen))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typesTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx inference returned no output")
	}
	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	vec, err := e.pool(hidden, attentionMask)
	if err != nil {
		return nil, err
	}
	return normalize(vec), nil
}

// pool reduces the model output to a single vector. MiniLM exports
// either a pre-pooled [1, dims] output or raw hidden states
// [1, seq, dims] that need attention-masked mean pooling.
func (e *Embedder) pool(t *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := t.GetData()
	shape := t.GetShape()

	switch len(shape) {
	case 2:
		if len(data) < e.dims {
			return nil, fmt.Errorf("pooled output has %d values, want %d", len(data), e.dims)
		}
		vec := make([]float32, e.dims)
		copy(vec, data[:e.dims])
		return vec, nil

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dims {
			return nil, fmt.Errorf("hidden size %d does not match configured dimensions %d", hidden, e.dims)
		}

		vec := make([]float32, e.dims)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens to pool")
		}
		for j := range vec {
			vec[j] /= attended
		}
		return vec, nil

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close releases the inference session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// wordPieceTokenizer is a minimal BERT WordPiece tokenizer backed by
// the vocab section of a HuggingFace tokenizer.json.
type wordPieceTokenizer struct {
	vocab map[string]int
	clsID int
	sepID int
	unkID int
}

func loadTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer vocab is empty")
	}

	t := &wordPieceTokenizer{
		vocab: file.Model.Vocab,
		clsID: 101,
		sepID: 102,
		unkID: 100,
	}
	// Prefer the vocab's own special-token ids when present.
	if id, ok := t.vocab["[CLS]"]; ok {
		t.clsID = id
	}
	if id, ok := t.vocab["[SEP]"]; ok {
		t.sepID = id
	}
	if id, ok := t.vocab["[UNK]"]; ok {
		t.unkID = id
	}
	return t, nil
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	// BERT uncased lowercases everything.
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.split(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, int64(t.unkID))
			}
		}
	}
	return ids
}

// split performs greedy longest-prefix WordPiece segmentation,
// prefixing continuations with "##".
func (t *wordPieceTokenizer) split(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
