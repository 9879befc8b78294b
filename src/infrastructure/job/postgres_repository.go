package job

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

type PostgresTaskRepository struct {
	db *gorm.DB
}

func NewPostgresTaskRepository(db *gorm.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

func (r *PostgresTaskRepository) Create(ctx context.Context, taskType string, payload json.RawMessage) (*Task, error) {
	task := &Task{
		TaskType: taskType,
		Payload:  payload,
		Status:   TaskStatusPending,
	}

	result := r.db.WithContext(ctx).Create(task)
	if result.Error != nil {
		return nil, result.Error
	}

	return task, nil
}

func (r *PostgresTaskRepository) Get(ctx context.Context, id int) (*Task, error) {
	var task Task
	result := r.db.WithContext(ctx).First(&task, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &task, nil
}

func (r *PostgresTaskRepository) UpdateStatus(ctx context.Context, id int, status TaskStatus, err *string) error {
	result := r.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": status,
		"error":  err,
	})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errors.New("task not found")
	}

	return nil
}
