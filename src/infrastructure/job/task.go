package job

import (
	"context"
	"encoding/json"
	"time"
)

// TaskStatus defines the status of a background task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task represents a background task
type Task struct {
	ID        int             `json:"id"`
	TaskType  string          `json:"task_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TaskRepository defines the interface for task persistence
type TaskRepository interface {
	Create(ctx context.Context, taskType string, payload json.RawMessage) (*Task, error)
	Get(ctx context.Context, id int) (*Task, error)
	UpdateStatus(ctx context.Context, id int, status TaskStatus, err *string) error
}
