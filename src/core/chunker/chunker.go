// Package chunker splits document text into overlapping token windows that
// serve as the retrieval units for the vector index.
package chunker

import (
	"contextd/src/core/fault"
)

// Tokenizer converts text to and from token IDs. The production
// implementation wraps tiktoken; tests may substitute a simpler one.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}

// Chunk is one bounded slice of a document produced by a splitter.
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
	StartToken int
	EndToken   int
	Metadata   map[string]interface{}
}

// Config holds the window parameters shared by both splitters.
type Config struct {
	ChunkSize int // window size in tokens
	Overlap   int // tokens shared between consecutive windows
}

func (c Config) validate() error {
	if c.ChunkSize <= 0 {
		return fault.Configurationf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fault.Configurationf("overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fault.Configurationf("overlap %d must be smaller than chunk size %d", c.Overlap, c.ChunkSize)
	}
	return nil
}

// TokenWindow splits text into fixed-size token windows. Each chunk after
// the first starts ChunkSize-Overlap tokens after the previous chunk's
// start; the final chunk may be shorter. Splitting is deterministic for a
// given input and configuration.
type TokenWindow struct {
	cfg Config
	tok Tokenizer
}

// NewTokenWindow validates the configuration and returns a splitter.
func NewTokenWindow(cfg Config, tok Tokenizer) (*TokenWindow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TokenWindow{cfg: cfg, tok: tok}, nil
}

// Split chunks text into the configured token windows. Empty or
// whitespace-only input yields no chunks.
func (w *TokenWindow) Split(text string) []Chunk {
	tokens := w.tok.Encode(text)
	total := len(tokens)
	if total == 0 {
		return nil
	}

	stride := w.cfg.ChunkSize - w.cfg.Overlap

	var chunks []Chunk
	for start := 0; start < total; start += stride {
		end := start + w.cfg.ChunkSize
		if end > total {
			end = total
		}

		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    w.tok.Decode(window),
			TokenCount: len(window),
			StartToken: start,
			EndToken:   end,
		})

		if end == total {
			break
		}
	}

	return chunks
}

// Config returns the splitter configuration.
func (w *TokenWindow) Config() Config {
	return w.cfg
}
