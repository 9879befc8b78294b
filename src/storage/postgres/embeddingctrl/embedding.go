package embeddingctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Embedding stores one chunk's vector together with the model that
// produced it. The vector column is created without a fixed width; the
// migration narrows it to the configured dimension.
type Embedding struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	ChunkID   int64           `gorm:"not null;uniqueIndex" json:"chunk_id"`
	ModelID   string          `gorm:"not null;column:model_id" json:"model_id"`
	VectorDim int             `gorm:"not null;column:vector_dim" json:"vector_dim"`
	Vector    pgvector.Vector `gorm:"type:vector" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type EmbeddingService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
	modelID   string
	dimension int
}

// NewEmbeddingService binds the store to the embedding model whose vectors
// it persists. modelID and dimension are stamped on every row.
func NewEmbeddingService(db *gorm.DB, modelID string, dimension int) (*EmbeddingService, error) {
	node, err := snowflake.NewNode(3) // Node number 3 for embeddings
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &EmbeddingService{
		db:        db,
		snowflake: node,
		modelID:   modelID,
		dimension: dimension,
	}, nil
}

// SaveEmbeddings upserts vectors keyed by chunk id, so a forced reindex
// overwrites in place.
func (s *EmbeddingService) SaveEmbeddings(ctx context.Context, chunkIDs []int64, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("got %d chunk ids for %d vectors", len(chunkIDs), len(vectors))
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	rows := make([]Embedding, 0, len(chunkIDs))
	for i, chunkID := range chunkIDs {
		rows = append(rows, Embedding{
			ID:        s.snowflake.Generate().Int64(),
			ChunkID:   chunkID,
			ModelID:   s.modelID,
			VectorDim: s.dimension,
			Vector:    pgvector.NewVector(vectors[i]),
		})
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"model_id", "vector_dim", "vector", "updated_at"}),
	}).CreateInBatches(rows, 200)
	if result.Error != nil {
		return fmt.Errorf("failed to save embeddings: %v", result.Error)
	}
	return nil
}

// AllEmbeddings loads every stored vector, parallel slices in chunk order.
func (s *EmbeddingService) AllEmbeddings(ctx context.Context) ([]int64, [][]float32, error) {
	var rows []Embedding
	result := s.db.WithContext(ctx).Order("chunk_id").Find(&rows)
	if result.Error != nil {
		return nil, nil, fmt.Errorf("failed to list embeddings: %v", result.Error)
	}

	ids := make([]int64, 0, len(rows))
	vectors := make([][]float32, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ChunkID)
		vectors = append(vectors, row.Vector.Slice())
	}
	return ids, vectors, nil
}

func (s *EmbeddingService) DeleteByChunkIDs(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Delete(&Embedding{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete embeddings: %v", result.Error)
	}
	return nil
}
