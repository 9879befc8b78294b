package querylogctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"contextd/src/core/search"
)

type SearchQueryLog struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	Query       string          `gorm:"not null;type:text" json:"query"`
	TopK        int             `gorm:"not null;column:top_k" json:"top_k"`
	Filters     json.RawMessage `gorm:"type:jsonb" json:"filters,omitempty"`
	ResultCount int             `gorm:"not null;column:result_count" json:"result_count"`
	ExecutionMS float64         `gorm:"not null;column:execution_ms" json:"execution_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

type QueryLogService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewQueryLogService(db *gorm.DB) (*QueryLogService, error) {
	node, err := snowflake.NewNode(4) // Node number 4 for query logs
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &QueryLogService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *QueryLogService) LogQuery(ctx context.Context, entry search.QueryLogEntry) error {
	var filters json.RawMessage
	if len(entry.Filters) > 0 {
		raw, err := json.Marshal(entry.Filters)
		if err != nil {
			return fmt.Errorf("failed to marshal query filters: %v", err)
		}
		filters = raw
	}

	row := &SearchQueryLog{
		ID:          s.snowflake.Generate().Int64(),
		Query:       entry.Query,
		TopK:        entry.TopK,
		Filters:     filters,
		ResultCount: entry.ResultCount,
		ExecutionMS: entry.ExecutionMS,
	}
	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create query log: %v", result.Error)
	}
	return nil
}

// Recent returns the latest logged queries, newest first.
func (s *QueryLogService) Recent(ctx context.Context, limit int) ([]search.QueryLogRecord, error) {
	var rows []SearchQueryLog
	result := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list query logs: %v", result.Error)
	}

	records := make([]search.QueryLogRecord, 0, len(rows))
	for _, row := range rows {
		var filters map[string]string
		if len(row.Filters) > 0 {
			if err := json.Unmarshal(row.Filters, &filters); err != nil {
				return nil, fmt.Errorf("failed to unmarshal query filters: %v", err)
			}
		}
		records = append(records, search.QueryLogRecord{
			Query:       row.Query,
			TopK:        row.TopK,
			Filters:     filters,
			ResultCount: row.ResultCount,
			ExecutionMS: row.ExecutionMS,
			CreatedAt:   row.CreatedAt,
		})
	}
	return records, nil
}
