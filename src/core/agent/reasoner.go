package agent

import "context"

// Message is one turn of an existing conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is a retrieved context chunk handed to the reasoner and echoed
// back to the caller as provenance.
type Source struct {
	ChunkID    int64                  `json:"chunk_id"`
	DocumentID int64                  `json:"document_id"`
	Title      string                 `json:"title"`
	Origin     string                 `json:"origin"`
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// TokenUsage counts tokens consumed by the reasoning model.
type TokenUsage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.Input + u.Output
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
}

// ToolCallRequest is the reasoner asking for a tool to be executed.
type ToolCallRequest struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// CompletionRequest carries everything the reasoner needs for one pass.
// ToolResults is empty on the first pass and holds the dispatched calls on
// the follow-up pass.
type CompletionRequest struct {
	Query       string
	History     []Message
	Context     []Source
	Tools       []Tool
	ToolResults []Call
}

// Completion is one reasoning pass. A non-empty ToolCalls means the model
// wants tools executed before it can answer.
type Completion struct {
	Text      string
	ToolCalls []ToolCallRequest
	Usage     TokenUsage
}

// Reasoner produces completions. Implementations must honor ctx
// cancellation and are expected to run deterministically (temperature 0).
type Reasoner interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
