// Package system reports the health of the service's external
// collaborators.
package system

import "context"

// ComponentStatus represents individual component status
type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

// HealthStatus represents system health status
type HealthStatus struct {
	Status     string `json:"status"`
	Components struct {
		Postgres ComponentStatus `json:"postgres"`
		Ollama   ComponentStatus `json:"ollama"`
	} `json:"components"`
	IndexedChunks int `json:"indexed_chunks"`
}

// Probe checks one external collaborator. A nil error means up.
type Probe func(ctx context.Context) error

type service struct {
	postgres Probe
	ollama   Probe
	indexLen func() int
}

// Service checks component health.
type Service interface {
	CheckHealth(ctx context.Context) (*HealthStatus, error)
}

// NewService wires the component probes. Any probe may be nil, in which
// case that component reports down.
func NewService(postgres, ollama Probe, indexLen func() int) Service {
	return &service{
		postgres: postgres,
		ollama:   ollama,
		indexLen: indexLen,
	}
}

func (s *service) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Status: "healthy"}
	status.Components.Postgres = StatusDown
	status.Components.Ollama = StatusDown

	if s.postgres != nil && s.postgres(ctx) == nil {
		status.Components.Postgres = StatusUp
	}
	if s.ollama != nil && s.ollama(ctx) == nil {
		status.Components.Ollama = StatusUp
	}
	if s.indexLen != nil {
		status.IndexedChunks = s.indexLen()
	}

	if status.Components.Postgres == StatusDown ||
		status.Components.Ollama == StatusDown {
		status.Status = "unhealthy"
	}

	return status, nil
}
