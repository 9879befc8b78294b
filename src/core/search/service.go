// Package search implements similarity search over the vector index with
// metadata filtering and storage hydration.
package search

import (
	"context"
	"time"

	"contextd/src/core/embedder"
	"contextd/src/core/fault"
	"contextd/src/core/vectorindex"
	"contextd/src/infrastructure/log"
	"contextd/src/infrastructure/observability"
)

// DefaultTopK is used when a request does not set top_k.
const DefaultTopK = 5

// Request is one similarity search. TopK is a pointer so an omitted value
// takes the default while an explicit zero is rejected.
type Request struct {
	Query   string `json:"query"`
	TopK    *int   `json:"top_k,omitempty"`
	DocType string `json:"doc_type,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

// Result is one ranked hit, hydrated from storage.
type Result struct {
	ChunkID    int64                  `json:"chunk_id"`
	DocumentID int64                  `json:"document_id"`
	Title      string                 `json:"title"`
	Origin     string                 `json:"origin"`
	DocType    string                 `json:"doc_type"`
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Response carries the hits and the measured execution time.
type Response struct {
	Results     []Result `json:"results"`
	ExecutionMS float64  `json:"execution_ms"`
}

// StoredChunk is the storage view of a chunk.
type StoredChunk struct {
	ID         int64
	DocumentID int64
	Content    string
	Metadata   map[string]interface{}
}

// StoredDocument is the storage view of a document.
type StoredDocument struct {
	ID      int64
	Title   string
	Origin  string
	DocType string
}

// ChunkStore hydrates chunks by id.
type ChunkStore interface {
	ChunksByIDs(ctx context.Context, ids []int64) (map[int64]StoredChunk, error)
}

// DocumentStore hydrates documents by id.
type DocumentStore interface {
	DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]StoredDocument, error)
}

// QueryLogEntry records one executed search for later analysis.
type QueryLogEntry struct {
	Query       string
	TopK        int
	Filters     map[string]string
	ResultCount int
	ExecutionMS float64
}

// QueryLogRecord is a stored query log row as read back for reporting.
type QueryLogRecord struct {
	Query       string            `json:"query"`
	TopK        int               `json:"top_k"`
	Filters     map[string]string `json:"filters,omitempty"`
	ResultCount int               `json:"result_count"`
	ExecutionMS float64           `json:"execution_ms"`
	CreatedAt   time.Time         `json:"created_at"`
}

// QueryLogger persists search query logs. Logging failures must not fail
// the search.
type QueryLogger interface {
	LogQuery(ctx context.Context, entry QueryLogEntry) error
}

// QueryLogReader is implemented by query log stores that can read entries
// back for reporting.
type QueryLogReader interface {
	Recent(ctx context.Context, limit int) ([]QueryLogRecord, error)
}

// Service runs similarity searches.
type Service struct {
	embedder  embedder.Embedder
	index     *vectorindex.Index
	catalog   *Catalog
	chunks    ChunkStore
	documents DocumentStore
	queryLog  QueryLogger
}

// NewService wires the search path. queryLog may be nil to disable query
// logging.
func NewService(emb embedder.Embedder, index *vectorindex.Index, catalog *Catalog, chunks ChunkStore, documents DocumentStore, queryLog QueryLogger) (*Service, error) {
	if emb == nil || index == nil || catalog == nil || chunks == nil || documents == nil {
		return nil, fault.Configurationf("search service requires embedder, index, catalog and stores")
	}
	return &Service{
		embedder:  emb,
		index:     index,
		catalog:   catalog,
		chunks:    chunks,
		documents: documents,
		queryLog:  queryLog,
	}, nil
}

// Search embeds the query, ranks candidates against the index and hydrates
// the hits from storage.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, fault.Validationf("query must not be empty")
	}
	topK := DefaultTopK
	if req.TopK != nil {
		if *req.TopK <= 0 {
			return nil, fault.Validationf("top_k must be positive, got %d", *req.TopK)
		}
		topK = *req.TopK
	}

	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "search.embed")
	vectors, err := s.embedder.EmbedBatch(ctx, []string{req.Query})
	span.End()
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fault.Transientf("embedder returned %d vectors for one query", len(vectors))
	}

	_, span = observability.StartSpan(ctx, "search.query")
	hits, err := s.index.QueryFiltered(vectors[0], topK, s.predicate(req))
	span.Set("hits", len(hits))
	span.End()
	if err != nil {
		return nil, err
	}

	results, err := s.hydrate(ctx, hits)
	if err != nil {
		return nil, err
	}

	executionMS := float64(time.Since(start).Microseconds()) / 1000
	s.logQuery(ctx, QueryLogEntry{
		Query:       req.Query,
		TopK:        topK,
		Filters:     req.filters(),
		ResultCount: len(results),
		ExecutionMS: executionMS,
	})

	return &Response{Results: results, ExecutionMS: executionMS}, nil
}

// filters returns the set filter fields for the audit log, or nil when the
// request has none.
func (r Request) filters() map[string]string {
	if r.DocType == "" && r.Origin == "" {
		return nil
	}
	out := make(map[string]string, 2)
	if r.DocType != "" {
		out["doc_type"] = r.DocType
	}
	if r.Origin != "" {
		out["origin"] = r.Origin
	}
	return out
}

// predicate builds the candidate filter, or nil when the request has no
// filters so the index can take its unfiltered path.
func (s *Service) predicate(req Request) func(int64) bool {
	if req.DocType == "" && req.Origin == "" {
		return nil
	}
	return func(chunkID int64) bool {
		attrs, ok := s.catalog.Get(chunkID)
		if !ok {
			return false
		}
		if req.DocType != "" && attrs.DocType != req.DocType {
			return false
		}
		if req.Origin != "" && attrs.Origin != req.Origin {
			return false
		}
		return true
	}
}

// hydrate loads chunk and document rows for the hits, preserving score
// order. Hits whose rows are gone from storage are dropped.
func (s *Service) hydrate(ctx context.Context, hits []vectorindex.Result) ([]Result, error) {
	if len(hits) == 0 {
		return []Result{}, nil
	}

	ctx, span := observability.StartSpan(ctx, "search.hydrate")
	defer span.End()

	chunkIDs := make([]int64, 0, len(hits))
	for _, hit := range hits {
		chunkIDs = append(chunkIDs, hit.ID)
	}
	chunks, err := s.chunks.ChunksByIDs(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	docIDs := make([]int64, 0, len(chunks))
	seen := make(map[int64]bool, len(chunks))
	for _, chunk := range chunks {
		if !seen[chunk.DocumentID] {
			seen[chunk.DocumentID] = true
			docIDs = append(docIDs, chunk.DocumentID)
		}
	}
	documents, err := s.documents.DocumentsByIDs(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := chunks[hit.ID]
		if !ok {
			log.Info("indexed chunk missing from storage", "chunk_id", hit.ID)
			continue
		}
		doc := documents[chunk.DocumentID]
		results = append(results, Result{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Title:      doc.Title,
			Origin:     doc.Origin,
			DocType:    doc.DocType,
			Content:    chunk.Content,
			Score:      hit.Score,
			Metadata:   chunk.Metadata,
		})
	}
	return results, nil
}

// RecentQueries returns the most recent query log entries, newest first.
// The configured query log must support reading entries back.
func (s *Service) RecentQueries(ctx context.Context, limit int) ([]QueryLogRecord, error) {
	reader, ok := s.queryLog.(QueryLogReader)
	if !ok {
		return nil, fault.Configurationf("query log does not support reading")
	}
	if limit <= 0 {
		limit = 20
	}
	return reader.Recent(ctx, limit)
}

func (s *Service) logQuery(ctx context.Context, entry QueryLogEntry) {
	if s.queryLog == nil {
		return
	}
	if err := s.queryLog.LogQuery(ctx, entry); err != nil {
		log.Error(err, "failed to persist search query log", "query", entry.Query)
	}
}
