package agent

import (
	"context"
	"fmt"
	"time"

	"contextd/src/core/fault"
	"contextd/src/infrastructure/log"
	"contextd/src/infrastructure/observability"
)

// State tracks the orchestration lifecycle. It is reported in traces and in
// the final response for observability.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateContextRetrieved State = "CONTEXT_RETRIEVED"
	StateReasoning        State = "REASONING"
	StateToolExecuting    State = "TOOL_EXECUTING"
	StateFinalizing       State = "FINALIZING"
	StateComplete         State = "COMPLETE"
	StateFailed           State = "FAILED"
)

// DefaultTopK is how many context chunks a query retrieves when the caller
// does not say otherwise.
const DefaultTopK = 5

// Pricing converts token usage into an estimated cost. Rates are per 1000
// tokens.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost returns the estimated cost for the given usage.
func (p Pricing) Cost(u TokenUsage) float64 {
	return float64(u.Input)/1000*p.InputPer1K + float64(u.Output)/1000*p.OutputPer1K
}

// Retriever fetches ranked context for a query. The search service
// satisfies this via a thin adapter.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Source, error)
}

// Request is one agent query.
type Request struct {
	Query   string    `json:"query"`
	History []Message `json:"history,omitempty"`
	TopK    int       `json:"top_k,omitempty"`
}

// Response is the final answer with full accounting.
type Response struct {
	Response     string     `json:"response"`
	Sources      []Source   `json:"sources"`
	ToolCalls    []Call     `json:"tool_calls"`
	Usage        TokenUsage `json:"token_usage"`
	CostEstimate float64    `json:"cost_estimate"`
	LatencyMS    float64    `json:"latency_ms"`
	State        State      `json:"state"`
}

// Config tunes the orchestrator.
type Config struct {
	TopK        int
	MaxAttempts int
	RetryDelay  time.Duration
	Pricing     Pricing
}

// Orchestrator drives the retrieve, reason, dispatch, re-reason loop. At
// most one tool round happens per query: after the dispatched results are
// fed back, the second completion is final and any further tool requests in
// it are ignored.
type Orchestrator struct {
	retriever Retriever
	reasoner  Reasoner
	registry  *Registry
	cfg       Config
}

// NewOrchestrator wires the loop. Retriever may be nil for a pure
// conversational deployment; reasoner and registry must be set.
func NewOrchestrator(retriever Retriever, reasoner Reasoner, registry *Registry, cfg Config) (*Orchestrator, error) {
	if reasoner == nil {
		return nil, fault.Configurationf("orchestrator requires a reasoner")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Orchestrator{retriever: retriever, reasoner: reasoner, registry: registry, cfg: cfg}, nil
}

// Query runs one full orchestration. Retrieval failures degrade to an
// empty context; reasoning failures, on either pass, fail the query.
func (o *Orchestrator) Query(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, fault.Validationf("query must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}

	start := time.Now()
	state := StateReceived

	sources := o.retrieve(ctx, req.Query, topK)
	state = StateContextRetrieved

	state = StateReasoning
	first, err := o.complete(ctx, "agent.reason", CompletionRequest{
		Query:   req.Query,
		History: req.History,
		Context: sources,
		Tools:   o.registry.List(),
	})
	if err != nil {
		return nil, o.fail(state, err)
	}

	usage := first.Usage
	text := first.Text
	var calls []Call

	if len(first.ToolCalls) > 0 {
		state = StateToolExecuting
		calls = o.dispatch(ctx, first.ToolCalls)

		state = StateFinalizing
		final, err := o.complete(ctx, "agent.followup", CompletionRequest{
			Query:       req.Query,
			History:     req.History,
			Context:     sources,
			Tools:       o.registry.List(),
			ToolResults: calls,
		})
		if err != nil {
			return nil, o.fail(state, err)
		}
		usage.Add(final.Usage)
		text = final.Text
	}

	resp := &Response{
		Response:     text,
		Sources:      sources,
		ToolCalls:    calls,
		Usage:        usage,
		CostEstimate: o.cfg.Pricing.Cost(usage),
		LatencyMS:    float64(time.Since(start).Microseconds()) / 1000,
		State:        StateComplete,
	}
	log.Debug("agent query complete",
		"tool_calls", len(calls),
		"input_tokens", usage.Input,
		"output_tokens", usage.Output,
		"latency_ms", resp.LatencyMS,
	)
	return resp, nil
}

// retrieve fetches context, logging and swallowing failures so the agent
// can still answer from the model alone.
func (o *Orchestrator) retrieve(ctx context.Context, query string, topK int) []Source {
	if o.retriever == nil {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, "agent.retrieve")
	defer span.End()

	sources, err := o.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		log.Error(err, "context retrieval failed, continuing without context", "query", query)
		span.Set("error", err.Error())
		return nil
	}
	span.Set("sources", len(sources))
	return sources
}

// dispatch executes the requested tools sequentially in request order.
// Individual failures are recorded in the call results, not raised.
func (o *Orchestrator) dispatch(ctx context.Context, reqs []ToolCallRequest) []Call {
	calls := make([]Call, 0, len(reqs))
	for _, tc := range reqs {
		ctx, span := observability.StartSpan(ctx, "agent.tool."+tc.Name)
		call := o.registry.Dispatch(ctx, tc.Name, tc.Args)
		span.Set("success", call.Success)
		span.End()
		if !call.Success {
			log.Info("tool call failed", "tool", tc.Name, "error", call.Error)
		}
		calls = append(calls, call)
	}
	return calls
}

// complete runs one reasoning pass, retrying transient upstream failures.
func (o *Orchestrator) complete(ctx context.Context, spanName string, req CompletionRequest) (*Completion, error) {
	ctx, span := observability.StartSpan(ctx, spanName)
	defer span.End()

	var lastErr error
	delay := o.cfg.RetryDelay
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		completion, err := o.reasoner.Complete(ctx, req)
		if err == nil {
			span.Set("input_tokens", completion.Usage.Input)
			span.Set("output_tokens", completion.Usage.Output)
			return completion, nil
		}
		lastErr = err
		if !fault.IsTransient(err) {
			break
		}
		if attempt < o.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	span.Set("error", lastErr.Error())
	return nil, lastErr
}

func (o *Orchestrator) fail(state State, err error) error {
	log.Error(err, "agent query failed", "state", string(state))
	return fmt.Errorf("agent query failed during %s: %w", state, err)
}
