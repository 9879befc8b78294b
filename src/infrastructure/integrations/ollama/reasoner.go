package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contextd/src/core/agent"
)

const systemPrompt = `You are a helpful assistant answering questions about an internal document base.
Ground your answers in the provided context passages and cite them when you use them.
If the context does not contain the answer, say so. Use the available tools when they help.`

// Reasoner adapts the client to the agent's reasoning interface. All
// completions run at temperature zero.
type Reasoner struct {
	client *Client
	model  string
}

// NewReasoner binds the client to a chat model.
func NewReasoner(client *Client, model string) *Reasoner {
	return &Reasoner{client: client, model: model}
}

// Complete runs one reasoning pass. When the request carries tool results
// the conversation replays the model's tool calls followed by their
// outputs, so the model can compose the final answer.
func (r *Reasoner) Complete(ctx context.Context, req agent.CompletionRequest) (*agent.Completion, error) {
	messages := buildMessages(req)

	tools, err := buildTools(req.Tools)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Chat(ctx, ChatRequest{
		Model:    r.model,
		Messages: messages,
		Tools:    tools,
		Options:  map[string]interface{}{"temperature": 0},
	})
	if err != nil {
		return nil, err
	}

	completion := &agent.Completion{
		Text: resp.Message.Content,
		Usage: agent.TokenUsage{
			Input:  resp.PromptEvalCount,
			Output: resp.EvalCount,
		},
	}
	for _, tc := range resp.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, agent.ToolCallRequest{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return completion, nil
}

func buildMessages(req agent.CompletionRequest) []ChatMessage {
	messages := []ChatMessage{{Role: "system", Content: systemPrompt + contextBlock(req.Context)}}

	for _, msg := range req.History {
		messages = append(messages, ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.Query})

	if len(req.ToolResults) > 0 {
		calls := make([]ToolCall, 0, len(req.ToolResults))
		for _, call := range req.ToolResults {
			calls = append(calls, ToolCall{Function: ToolCallFunction{Name: call.Name, Arguments: call.Args}})
		}
		messages = append(messages, ChatMessage{Role: "assistant", ToolCalls: calls})
		for _, call := range req.ToolResults {
			messages = append(messages, ChatMessage{Role: "tool", Content: toolResultContent(call)})
		}
	}
	return messages
}

func contextBlock(sources []agent.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nContext passages:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n", i+1, src.Title, src.Origin, src.Content)
	}
	return b.String()
}

func toolResultContent(call agent.Call) string {
	if !call.Success {
		return fmt.Sprintf(`{"error": %q}`, call.Error)
	}
	raw, err := json.Marshal(call.Result)
	if err != nil {
		return fmt.Sprintf(`{"error": "unserializable tool result: %v"}`, err)
	}
	return string(raw)
}

func buildTools(tools []agent.Tool) ([]ToolDefinition, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		params, err := json.Marshal(map[string]interface{}{
			"type":       "object",
			"properties": tool.Parameters.Properties,
			"required":   tool.Parameters.Required,
		})
		if err != nil {
			return nil, fmt.Errorf("error marshaling schema for tool %s: %w", tool.Name, err)
		}
		out = append(out, ToolDefinition{
			Type: "function",
			Function: ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}
