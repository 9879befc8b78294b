package chunker_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"contextd/src/core/chunker"
	"contextd/src/core/fault"
)

// wordTokenizer treats each whitespace-separated word as one token, which
// keeps chunk contents reconstructable in tests.
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) []int {
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	for i := range words {
		tokens[i] = i
	}
	encodedWords.words = words
	return tokens
}

func (wordTokenizer) Decode(tokens []int) string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = encodedWords.words[tok]
	}
	return strings.Join(out, " ")
}

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// encodedWords holds the last encoded word list so Decode can map token IDs
// back. Sufficient for single-document test flows.
var encodedWords struct{ words []string }

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + string(rune('a'+i%26)) + itoa(i)
	}
	return strings.Join(parts, " ")
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	return string(b)
}

func TestNewTokenWindowRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  chunker.Config
	}{
		{name: "overlap equals chunk size", cfg: chunker.Config{ChunkSize: 10, Overlap: 10}},
		{name: "overlap exceeds chunk size", cfg: chunker.Config{ChunkSize: 10, Overlap: 12}},
		{name: "zero chunk size", cfg: chunker.Config{ChunkSize: 0, Overlap: 0}},
		{name: "negative overlap", cfg: chunker.Config{ChunkSize: 10, Overlap: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunker.NewTokenWindow(tt.cfg, wordTokenizer{})
			if err == nil {
				t.Fatalf("NewTokenWindow(%+v) succeeded, want configuration error", tt.cfg)
			}
			if !errors.Is(err, fault.ErrConfiguration) {
				t.Errorf("error = %v, want fault.ErrConfiguration", err)
			}
		})
	}
}

func TestTokenWindowSplit(t *testing.T) {
	tests := []struct {
		name       string
		cfg        chunker.Config
		tokenCount int
		wantChunks int
		wantLast   int // token count of the final chunk
	}{
		{name: "exact single window", cfg: chunker.Config{ChunkSize: 10, Overlap: 2}, tokenCount: 10, wantChunks: 1, wantLast: 10},
		{name: "short document", cfg: chunker.Config{ChunkSize: 10, Overlap: 2}, tokenCount: 4, wantChunks: 1, wantLast: 4},
		{name: "two windows with remainder", cfg: chunker.Config{ChunkSize: 10, Overlap: 2}, tokenCount: 15, wantChunks: 2, wantLast: 7},
		{name: "many windows", cfg: chunker.Config{ChunkSize: 8, Overlap: 3}, tokenCount: 40, wantChunks: 8, wantLast: 5},
		{name: "no overlap", cfg: chunker.Config{ChunkSize: 5, Overlap: 0}, tokenCount: 12, wantChunks: 3, wantLast: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := chunker.NewTokenWindow(tt.cfg, wordTokenizer{})
			if err != nil {
				t.Fatalf("NewTokenWindow: %v", err)
			}

			chunks := w.Split(words(tt.tokenCount))
			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}

			stride := tt.cfg.ChunkSize - tt.cfg.Overlap
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d, want strictly increasing from 0", i, c.Index)
				}
				if c.TokenCount > tt.cfg.ChunkSize {
					t.Errorf("chunk %d has %d tokens, exceeds chunk size %d", i, c.TokenCount, tt.cfg.ChunkSize)
				}
				if c.StartToken != i*stride {
					t.Errorf("chunk %d starts at token %d, want %d", i, c.StartToken, i*stride)
				}
			}

			if got := chunks[len(chunks)-1].TokenCount; got != tt.wantLast {
				t.Errorf("final chunk has %d tokens, want %d", got, tt.wantLast)
			}
		})
	}
}

func TestTokenWindowReconstruction(t *testing.T) {
	cfg := chunker.Config{ChunkSize: 7, Overlap: 3}
	w, err := chunker.NewTokenWindow(cfg, wordTokenizer{})
	if err != nil {
		t.Fatalf("NewTokenWindow: %v", err)
	}

	original := words(33)
	chunks := w.Split(original)

	// Concatenating chunk contents minus the declared overlaps must yield
	// the original text.
	var rebuilt []string
	for i, c := range chunks {
		fields := strings.Fields(c.Content)
		if i > 0 {
			fields = fields[cfg.Overlap:]
		}
		rebuilt = append(rebuilt, fields...)
	}
	if got := strings.Join(rebuilt, " "); got != original {
		t.Errorf("reconstruction mismatch:\n got: %s\nwant: %s", got, original)
	}
}

func TestTokenWindowDeterminism(t *testing.T) {
	w, err := chunker.NewTokenWindow(chunker.Config{ChunkSize: 6, Overlap: 2}, wordTokenizer{})
	if err != nil {
		t.Fatalf("NewTokenWindow: %v", err)
	}

	text := words(25)
	first := w.Split(text)
	second := w.Split(text)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input and configuration produced different chunk sequences")
	}
}

func TestTokenWindowEmptyInput(t *testing.T) {
	w, err := chunker.NewTokenWindow(chunker.Config{ChunkSize: 6, Overlap: 2}, wordTokenizer{})
	if err != nil {
		t.Fatalf("NewTokenWindow: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\t"} {
		if got := w.Split(text); len(got) != 0 {
			t.Errorf("Split(%q) = %d chunks, want none", text, len(got))
		}
	}
}

func TestSentenceWindowSplit(t *testing.T) {
	w, err := chunker.NewSentenceWindow(chunker.Config{ChunkSize: 8, Overlap: 3}, wordTokenizer{})
	if err != nil {
		t.Fatalf("NewSentenceWindow: %v", err)
	}

	text := "one two three. four five six. seven eight. nine ten eleven twelve."
	chunks := w.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		// No sentence may be split: every chunk ends with a terminator.
		if !strings.HasSuffix(c.Content, ".") {
			t.Errorf("chunk %d content %q does not end on a sentence boundary", i, c.Content)
		}
	}

	// The second chunk must begin with trailing sentences of the first
	// (overlap budget 3 tokens fits "seven eight.").
	if !strings.Contains(chunks[0].Content, "seven eight.") {
		t.Fatalf("unexpected first chunk: %q", chunks[0].Content)
	}
	if !strings.HasPrefix(chunks[1].Content, "seven eight.") {
		t.Errorf("second chunk %q does not reuse trailing overlap sentences", chunks[1].Content)
	}
}

func TestSentenceWindowNeverExceedsChunkSizeWhenSentencesFit(t *testing.T) {
	w, err := chunker.NewSentenceWindow(chunker.Config{ChunkSize: 6, Overlap: 0}, wordTokenizer{})
	if err != nil {
		t.Fatalf("NewSentenceWindow: %v", err)
	}

	text := "a b c. d e f. g h. i j k l."
	for i, c := range w.Split(text) {
		if c.TokenCount > 6 {
			t.Errorf("chunk %d has %d tokens, want <= 6", i, c.TokenCount)
		}
	}
}
