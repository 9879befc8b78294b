// Package observability provides request traces with named spans and a
// process-wide metrics collector. Traces travel through context so lower
// layers can attach spans without threading an extra parameter.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"contextd/src/infrastructure/log"
)

// Span is one timed step inside a trace.
type Span struct {
	Name     string                 `json:"name"`
	Start    time.Time              `json:"start"`
	Duration time.Duration          `json:"duration"`
	Attrs    map[string]interface{} `json:"attrs,omitempty"`

	mu    sync.Mutex
	ended bool
}

// Set attaches an attribute to the span.
func (s *Span) Set(key string, value interface{}) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Attrs == nil {
		s.Attrs = make(map[string]interface{})
	}
	s.Attrs[key] = value
}

// End closes the span, fixing its duration. Ending twice is a no-op.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.Start)
}

// Trace records one request end to end.
type Trace struct {
	ID        string
	Operation string
	Start     time.Time

	mu       sync.Mutex
	spans    []*Span
	attrs    map[string]interface{}
	finished bool

	collector *Collector
}

// NewTrace opens a trace for the given operation. collector may be nil.
func NewTrace(operation string, collector *Collector) *Trace {
	return &Trace{
		ID:        uuid.NewString(),
		Operation: operation,
		Start:     time.Now(),
		attrs:     make(map[string]interface{}),
		collector: collector,
	}
}

// Set attaches an attribute to the trace itself.
func (t *Trace) Set(key string, value interface{}) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attrs[key] = value
}

// StartSpan opens a span on the trace.
func (t *Trace) StartSpan(name string) *Span {
	span := &Span{Name: name, Start: time.Now()}
	if t == nil {
		return span
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, span)
	return span
}

// Spans returns the spans recorded so far.
func (t *Trace) Spans() []*Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// Finish closes the trace, emits a structured summary and feeds the
// collector. failed marks the request as errored. Finishing twice is a
// no-op.
func (t *Trace) Finish(failed bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	duration := time.Since(t.Start)
	spanCount := len(t.spans)
	kv := []interface{}{
		"trace_id", t.ID,
		"operation", t.Operation,
		"duration_ms", float64(duration.Microseconds()) / 1000,
		"spans", spanCount,
		"failed", failed,
	}
	for k, v := range t.attrs {
		kv = append(kv, k, v)
	}
	t.mu.Unlock()

	log.Info("trace finished", kv...)
	if t.collector != nil {
		t.collector.record(t.Operation, duration, failed)
	}
}

type traceKey struct{}

// WithTrace stores the trace in the context.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// FromContext returns the trace carried by ctx, or nil.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

// StartSpan opens a span on the context's trace. Without a trace the span
// is detached and recording it is harmless.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	return ctx, FromContext(ctx).StartSpan(name)
}
