package chunkctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"contextd/src/core/ingest"
	"contextd/src/core/search"
)

type Chunk struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	DocumentID int64           `gorm:"not null;index" json:"document_id"`
	Position   int             `gorm:"not null;column:position" json:"position"`
	Content    string          `gorm:"not null;type:text" json:"content"`
	TokenCount int             `gorm:"not null;column:token_count" json:"token_count"`
	Metadata   json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ChunkService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewChunkService(db *gorm.DB) (*ChunkService, error) {
	node, err := snowflake.NewNode(2) // Node number 2 for chunks
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ChunkService{
		db:        db,
		snowflake: node,
	}, nil
}

// CreateChunks persists the batch in one insert and writes the generated
// ids back in place.
func (s *ChunkService) CreateChunks(ctx context.Context, chunks []*ingest.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		var metadata json.RawMessage
		if chunk.Metadata != nil {
			raw, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal chunk metadata: %v", err)
			}
			metadata = raw
		}
		rows = append(rows, Chunk{
			ID:         s.snowflake.Generate().Int64(),
			DocumentID: chunk.DocumentID,
			Position:   chunk.Position,
			Content:    chunk.Content,
			TokenCount: chunk.TokenCount,
			Metadata:   metadata,
		})
	}

	result := s.db.WithContext(ctx).CreateInBatches(rows, 200)
	if result.Error != nil {
		return fmt.Errorf("failed to create chunks: %v", result.Error)
	}

	for i := range chunks {
		chunks[i].ID = rows[i].ID
	}
	return nil
}

func (s *ChunkService) AllChunks(ctx context.Context) ([]ingest.ChunkRecord, error) {
	var rows []Chunk
	result := s.db.WithContext(ctx).Order("document_id, position").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list chunks: %v", result.Error)
	}

	records := make([]ingest.ChunkRecord, 0, len(rows))
	for _, row := range rows {
		metadata, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, err
		}
		records = append(records, ingest.ChunkRecord{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Position:   row.Position,
			Content:    row.Content,
			TokenCount: row.TokenCount,
			Metadata:   metadata,
		})
	}
	return records, nil
}

func (s *ChunkService) ChunksByIDs(ctx context.Context, ids []int64) (map[int64]search.StoredChunk, error) {
	var rows []Chunk
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %v", result.Error)
	}

	out := make(map[int64]search.StoredChunk, len(rows))
	for _, row := range rows {
		metadata, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, err
		}
		out[row.ID] = search.StoredChunk{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Metadata:   metadata,
		}
	}
	return out, nil
}

func (s *ChunkService) ChunkIDsByDocument(ctx context.Context, documentID int64) ([]int64, error) {
	var ids []int64
	result := s.db.WithContext(ctx).Model(&Chunk{}).Where("document_id = ?", documentID).Pluck("id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %v", result.Error)
	}
	return ids, nil
}

func (s *ChunkService) DeleteByDocumentID(ctx context.Context, documentID int64) error {
	result := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&Chunk{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chunks: %v", result.Error)
	}
	return nil
}

func decodeMetadata(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk metadata: %v", err)
	}
	return metadata, nil
}
