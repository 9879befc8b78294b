package documentctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"contextd/src/core/agent"
	"contextd/src/core/fault"
	"contextd/src/core/ingest"
	"contextd/src/core/search"
)

type Document struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	Title     string          `gorm:"not null" json:"title"`
	Content   string          `gorm:"type:text" json:"content"`
	Origin    string          `gorm:"index" json:"origin"`
	DocType   string          `gorm:"index;column:doc_type" json:"doc_type"`
	Metadata  json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type DocumentService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	node, err := snowflake.NewNode(1) // Node number 1 for documents
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &DocumentService{
		db:        db,
		snowflake: node,
	}, nil
}

// CreateDocument persists the record and writes the generated id back.
func (s *DocumentService) CreateDocument(ctx context.Context, doc *ingest.DocumentRecord) error {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	row := &Document{
		ID:       s.snowflake.Generate().Int64(),
		Title:    doc.Title,
		Content:  doc.Content,
		Origin:   doc.Origin,
		DocType:  doc.DocType,
		Metadata: metadata,
	}
	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create document: %v", result.Error)
	}

	doc.ID = row.ID
	return nil
}

func (s *DocumentService) AllDocuments(ctx context.Context) ([]ingest.DocumentRecord, error) {
	var rows []Document
	result := s.db.WithContext(ctx).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %v", result.Error)
	}

	records := make([]ingest.DocumentRecord, 0, len(rows))
	for _, row := range rows {
		metadata, err := unmarshalMetadata(row.Metadata)
		if err != nil {
			return nil, err
		}
		records = append(records, ingest.DocumentRecord{
			ID:       row.ID,
			Title:    row.Title,
			Content:  row.Content,
			Origin:   row.Origin,
			DocType:  row.DocType,
			Metadata: metadata,
		})
	}
	return records, nil
}

func (s *DocumentService) DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]search.StoredDocument, error) {
	var rows []Document
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get documents: %v", result.Error)
	}

	out := make(map[int64]search.StoredDocument, len(rows))
	for _, row := range rows {
		out[row.ID] = search.StoredDocument{
			ID:      row.ID,
			Title:   row.Title,
			Origin:  row.Origin,
			DocType: row.DocType,
		}
	}
	return out, nil
}

// DeleteDocument removes the document row.
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID int64) error {
	result := s.db.WithContext(ctx).Delete(&Document{}, documentID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.NotFoundf("document %d", documentID)
	}
	return nil
}

// Sources lists the documents with their chunk counts for the get_sources
// tool.
func (s *DocumentService) Sources(ctx context.Context) ([]agent.SourceInfo, error) {
	type row struct {
		ID         int64
		Title      string
		Origin     string
		ChunkCount int
	}
	var rows []row
	result := s.db.WithContext(ctx).
		Table("documents").
		Select("documents.id, documents.title, documents.origin, count(chunks.id) as chunk_count").
		Joins("LEFT JOIN chunks ON chunks.document_id = documents.id").
		Group("documents.id, documents.title, documents.origin").
		Order("documents.id").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list sources: %v", result.Error)
	}

	out := make([]agent.SourceInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, agent.SourceInfo{
			DocumentID: r.ID,
			Title:      r.Title,
			Origin:     r.Origin,
			ChunkCount: r.ChunkCount,
		})
	}
	return out, nil
}

func marshalMetadata(metadata map[string]interface{}) (json.RawMessage, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document metadata: %v", err)
	}
	return raw, nil
}

func unmarshalMetadata(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document metadata: %v", err)
	}
	return metadata, nil
}
