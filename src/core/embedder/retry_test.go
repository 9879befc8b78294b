package embedder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"contextd/src/core/embedder"
	"contextd/src/core/fault"
)

type scriptedEmbedder struct {
	calls int
	errs  []error // error per call; nil means success
	dim   int
}

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func (s *scriptedEmbedder) Dimension() int { return s.dim }

func TestWithRetryRecoversFromTransientFailures(t *testing.T) {
	inner := &scriptedEmbedder{
		errs: []error{fault.Transientf("timeout"), fault.Transientf("timeout"), nil},
		dim:  4,
	}
	e := embedder.WithRetry(inner, 3, time.Millisecond)

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 {
		t.Errorf("got %d vectors, want 2", len(vectors))
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	inner := &scriptedEmbedder{
		errs: []error{fault.Transientf("t1"), fault.Transientf("t2"), fault.Transientf("t3")},
		dim:  4,
	}
	e := embedder.WithRetry(inner, 3, time.Millisecond)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("EmbedBatch succeeded, want unavailable error")
	}
	if !errors.Is(err, fault.ErrUnavailable) {
		t.Errorf("error = %v, want fault.ErrUnavailable", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestWithRetryDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "validation", err: fault.Validationf("empty input")},
		{name: "configuration", err: fault.Configurationf("missing credential")},
		{name: "plain", err: errors.New("auth rejected")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedEmbedder{errs: []error{tt.err}, dim: 4}
			e := embedder.WithRetry(inner, 3, time.Millisecond)

			_, err := e.EmbedBatch(context.Background(), []string{"a"})
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v surfaced unchanged", err, tt.err)
			}
			if inner.calls != 1 {
				t.Errorf("inner called %d times, want exactly 1", inner.calls)
			}
		})
	}
}

func TestNotReadyShortCircuits(t *testing.T) {
	cfgErr := fault.Configurationf("embedding model not configured")
	e := embedder.NotReady(cfgErr, 0)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("error = %v, want fault.ErrConfiguration", err)
	}
}
