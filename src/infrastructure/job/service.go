package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic is the queue topic task messages are published to.
const Topic = "tasks"

// Handler executes one task type's payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

type TaskService struct {
	publisher message.Publisher
	repo      TaskRepository
	logger    watermill.LoggerAdapter
	handlers  map[string]Handler
}

type TaskMessage struct {
	TaskID   int             `json:"task_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

func NewTaskService(
	publisher message.Publisher,
	repo TaskRepository,
	logger watermill.LoggerAdapter,
) *TaskService {
	return &TaskService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		handlers:  make(map[string]Handler),
	}
}

// Register binds a handler to a task type. Registration happens during
// startup, before the worker router runs.
func (s *TaskService) Register(taskType string, handler Handler) {
	s.handlers[taskType] = handler
}

// Enqueue creates a task record and publishes it to the message queue.
// The returned string is the task id, usable with Lookup.
func (s *TaskService) Enqueue(ctx context.Context, taskType string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task, err := s.repo.Create(ctx, taskType, raw)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	taskMsg := TaskMessage{
		TaskID:   task.ID,
		TaskType: task.TaskType,
		Payload:  task.Payload,
	}
	msgPayload, err := json.Marshal(taskMsg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return "", fmt.Errorf("failed to publish task message: %w", err)
	}

	return strconv.Itoa(task.ID), nil
}

// Lookup fetches a task by its string id.
func (s *TaskService) Lookup(ctx context.Context, id string) (*Task, error) {
	taskID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", id, err)
	}
	return s.repo.Get(ctx, taskID)
}

// ProcessMessage processes one task message from the queue, updating the
// task row's status around the handler call.
func (s *TaskService) ProcessMessage(msg *message.Message) error {
	var taskMsg TaskMessage
	if err := json.Unmarshal(msg.Payload, &taskMsg); err != nil {
		return fmt.Errorf("failed to unmarshal task message: %w", err)
	}

	ctx := context.Background()

	task, err := s.repo.Get(ctx, taskMsg.TaskID)
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("task not found: %d", taskMsg.TaskID)
	}

	if err := s.repo.UpdateStatus(ctx, task.ID, TaskStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update task status to running: %w", err)
	}

	err = s.runHandler(ctx, task)

	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, task.ID, TaskStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update task status to failed", updateErr, watermill.LogFields{
				"task_id": task.ID,
			})
		}
		return fmt.Errorf("failed to process task: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, task.ID, TaskStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update task status to completed: %w", err)
	}

	return nil
}

func (s *TaskService) runHandler(ctx context.Context, task *Task) error {
	handler, ok := s.handlers[task.TaskType]
	if !ok {
		return fmt.Errorf("unknown task type: %s", task.TaskType)
	}
	s.logger.Info("Executing task", watermill.LogFields{
		"task_id":   task.ID,
		"task_type": task.TaskType,
	})
	return handler(ctx, task.Payload)
}
