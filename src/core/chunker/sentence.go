package chunker

import (
	"strings"
)

// SentenceWindow splits text into chunks of whole sentences. Sentences are
// accumulated until appending the next one would exceed ChunkSize tokens; a
// sentence is never split across chunks. The next chunk starts with the
// trailing sentences of the previous chunk that fit inside the Overlap
// token budget.
type SentenceWindow struct {
	cfg Config
	tok Tokenizer
}

// NewSentenceWindow validates the configuration and returns a
// sentence-aware splitter.
func NewSentenceWindow(cfg Config, tok Tokenizer) (*SentenceWindow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SentenceWindow{cfg: cfg, tok: tok}, nil
}

// Split chunks text on sentence boundaries.
func (w *SentenceWindow) Split(text string) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks  []Chunk
		current []string
		tokens  int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			TokenCount: tokens,
			Metadata:   map[string]interface{}{"sentence_count": len(current)},
		})
	}

	for _, sentence := range sentences {
		n := w.tok.Count(sentence)

		if len(current) > 0 && tokens+n > w.cfg.ChunkSize {
			flush()
			current, tokens = w.carryOver(current)
		}
		current = append(current, sentence)
		tokens += n
	}
	flush()

	return chunks
}

// carryOver returns the trailing sentences of the finished chunk whose
// combined token count fits within the overlap budget, oldest first.
func (w *SentenceWindow) carryOver(finished []string) ([]string, int) {
	if w.cfg.Overlap == 0 {
		return nil, 0
	}

	var (
		kept   []string
		tokens int
	)
	for i := len(finished) - 1; i >= 0; i-- {
		n := w.tok.Count(finished[i])
		if tokens+n > w.cfg.Overlap {
			break
		}
		kept = append([]string{finished[i]}, kept...)
		tokens += n
	}
	return kept, tokens
}

// splitSentences breaks text on terminal punctuation, keeping the
// terminator attached to its sentence.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
