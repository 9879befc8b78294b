package system_test

import (
	"context"
	"errors"
	"testing"

	"contextd/src/core/system"
)

func TestCheckHealthAllUp(t *testing.T) {
	up := func(ctx context.Context) error { return nil }
	svc := system.NewService(up, up, func() int { return 7 })

	status, err := svc.CheckHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != "healthy" {
		t.Fatalf("status %q, want healthy", status.Status)
	}
	if status.Components.Postgres != system.StatusUp || status.Components.Ollama != system.StatusUp {
		t.Fatalf("components: %+v", status.Components)
	}
	if status.IndexedChunks != 7 {
		t.Fatalf("indexed chunks %d, want 7", status.IndexedChunks)
	}
}

func TestCheckHealthComponentDown(t *testing.T) {
	up := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }
	svc := system.NewService(up, down, nil)

	status, err := svc.CheckHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != "unhealthy" {
		t.Fatalf("status %q, want unhealthy", status.Status)
	}
	if status.Components.Postgres != system.StatusUp || status.Components.Ollama != system.StatusDown {
		t.Fatalf("components: %+v", status.Components)
	}
}

func TestCheckHealthNilProbesReportDown(t *testing.T) {
	svc := system.NewService(nil, nil, nil)

	status, err := svc.CheckHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != "unhealthy" {
		t.Fatalf("status %q, want unhealthy", status.Status)
	}
}
