// Package ingest coordinates the document pipeline: persist, chunk, embed,
// index. Large batches are deferred to the job queue.
package ingest

import (
	"context"
	"time"

	"contextd/src/core/chunker"
	"contextd/src/core/embedder"
	"contextd/src/core/fault"
	"contextd/src/core/search"
	"contextd/src/core/vectorindex"
	"contextd/src/infrastructure/log"
	"contextd/src/infrastructure/observability"
)

// Task types understood by the queue workers.
const (
	TaskTypeIngest  = "ingest"
	TaskTypeReindex = "reindex"
)

// DocumentInput is one document submitted for ingestion.
type DocumentInput struct {
	Title    string                 `json:"title"`
	Content  string                 `json:"content"`
	Origin   string                 `json:"origin"`
	DocType  string                 `json:"doc_type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentRecord is the persisted document row.
type DocumentRecord struct {
	ID       int64
	Title    string
	Content  string
	Origin   string
	DocType  string
	Metadata map[string]interface{}
}

// ChunkRecord is the persisted chunk row.
type ChunkRecord struct {
	ID         int64
	DocumentID int64
	Position   int
	Content    string
	TokenCount int
	Metadata   map[string]interface{}
}

// DocumentStore persists documents. CreateDocument assigns the id.
// DeleteDocument reports a not-found fault for unknown ids.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *DocumentRecord) error
	AllDocuments(ctx context.Context) ([]DocumentRecord, error)
	DeleteDocument(ctx context.Context, documentID int64) error
}

// ChunkStore persists chunks. CreateChunks assigns ids in place.
type ChunkStore interface {
	CreateChunks(ctx context.Context, chunks []*ChunkRecord) error
	AllChunks(ctx context.Context) ([]ChunkRecord, error)
	ChunkIDsByDocument(ctx context.Context, documentID int64) ([]int64, error)
	DeleteByDocumentID(ctx context.Context, documentID int64) error
}

// EmbeddingStore persists chunk vectors for index rebuilds without
// re-embedding.
type EmbeddingStore interface {
	SaveEmbeddings(ctx context.Context, chunkIDs []int64, vectors [][]float32) error
	AllEmbeddings(ctx context.Context) ([]int64, [][]float32, error)
	DeleteByChunkIDs(ctx context.Context, chunkIDs []int64) error
}

// Archiver stores the raw submitted content. Archival failures never fail
// an ingestion.
type Archiver interface {
	Archive(ctx context.Context, doc DocumentRecord, content string) error
	RawDocument(ctx context.Context, documentID int64) ([]byte, error)
	DeleteRawDocument(ctx context.Context, documentID int64) error
}

// TaskQueue defers heavy work to background workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}) (string, error)
}

// Splitter cuts text into chunks. Satisfied by the chunker package.
type Splitter interface {
	Split(text string) []chunker.Chunk
}

// IngestPayload is the queued form of a deferred ingestion.
type IngestPayload struct {
	Documents []DocumentInput `json:"documents"`
}

// Filter narrows a reindex to documents matching the set fields. A zero
// Filter matches every document.
type Filter struct {
	DocType string `json:"doc_type,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

// Matches reports whether the document satisfies the filter.
func (f Filter) Matches(doc DocumentRecord) bool {
	if f.DocType != "" && doc.DocType != f.DocType {
		return false
	}
	if f.Origin != "" && doc.Origin != f.Origin {
		return false
	}
	return true
}

// ReindexPayload is the queued form of a deferred reindex.
type ReindexPayload struct {
	Force  bool   `json:"force"`
	Filter Filter `json:"filter"`
}

// DocumentSummary reports one ingested document.
type DocumentSummary struct {
	DocumentID int64  `json:"document_id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
}

// Result reports an ingestion. When Deferred is set the work was queued and
// TaskID identifies the background task.
type Result struct {
	Documents     []DocumentSummary `json:"documents,omitempty"`
	ChunksIndexed int               `json:"chunks_indexed"`
	Deferred      bool              `json:"deferred"`
	TaskID        string            `json:"task_id,omitempty"`
	DurationMS    float64           `json:"duration_ms"`
}

// Config tunes the coordinator. SyncThresholdBytes is the total content
// size above which an ingestion is deferred to the queue; zero disables
// deferral.
type Config struct {
	SyncThresholdBytes int
}

// Coordinator drives the ingestion pipeline.
type Coordinator struct {
	splitter   Splitter
	embedder   embedder.Embedder
	index      *vectorindex.Index
	catalog    *search.Catalog
	documents  DocumentStore
	chunks     ChunkStore
	embeddings EmbeddingStore
	archiver   Archiver
	queue      TaskQueue
	cfg        Config
}

// NewCoordinator wires the pipeline. archiver and queue may be nil.
func NewCoordinator(
	splitter Splitter,
	emb embedder.Embedder,
	index *vectorindex.Index,
	catalog *search.Catalog,
	documents DocumentStore,
	chunks ChunkStore,
	embeddings EmbeddingStore,
	archiver Archiver,
	queue TaskQueue,
	cfg Config,
) (*Coordinator, error) {
	if splitter == nil || emb == nil || index == nil || catalog == nil {
		return nil, fault.Configurationf("ingest coordinator requires splitter, embedder, index and catalog")
	}
	if documents == nil || chunks == nil || embeddings == nil {
		return nil, fault.Configurationf("ingest coordinator requires document, chunk and embedding stores")
	}
	return &Coordinator{
		splitter:   splitter,
		embedder:   emb,
		index:      index,
		catalog:    catalog,
		documents:  documents,
		chunks:     chunks,
		embeddings: embeddings,
		archiver:   archiver,
		queue:      queue,
		cfg:        cfg,
	}, nil
}

// Ingest validates the batch and either runs it inline or defers it to the
// queue when its total content size crosses the threshold.
func (c *Coordinator) Ingest(ctx context.Context, docs []DocumentInput) (*Result, error) {
	if err := validate(docs); err != nil {
		return nil, err
	}

	if c.shouldDefer(docs) {
		taskID, err := c.queue.Enqueue(ctx, TaskTypeIngest, IngestPayload{Documents: docs})
		if err != nil {
			return nil, err
		}
		log.Info("ingestion deferred to queue", "task_id", taskID, "documents", len(docs))
		return &Result{Deferred: true, TaskID: taskID}, nil
	}
	return c.IngestSync(ctx, docs)
}

// IngestSync runs the whole pipeline inline. Document rows are persisted
// first, then every chunk of the batch goes through one embedding call. A
// failure past that point fails the whole batch; rows persisted before the
// failure stay behind and are reported failed, not rolled back.
func (c *Coordinator) IngestSync(ctx context.Context, docs []DocumentInput) (*Result, error) {
	if err := validate(docs); err != nil {
		return nil, err
	}
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "ingest.persist_documents")
	type docChunks struct {
		record DocumentRecord
		chunks []chunker.Chunk
	}
	persisted := make([]docChunks, 0, len(docs))
	for _, input := range docs {
		doc := DocumentRecord{
			Title:    input.Title,
			Content:  input.Content,
			Origin:   input.Origin,
			DocType:  input.DocType,
			Metadata: input.Metadata,
		}
		if err := c.documents.CreateDocument(ctx, &doc); err != nil {
			span.End()
			return nil, err
		}
		c.archive(ctx, doc, input.Content)
		persisted = append(persisted, docChunks{record: doc})
	}
	span.End()

	ctx, span = observability.StartSpan(ctx, "ingest.chunk")
	var texts []string
	for i, input := range docs {
		chunks := c.splitter.Split(input.Content)
		if len(chunks) == 0 {
			span.End()
			return nil, fault.Validationf("document %q produced no chunks", input.Title)
		}
		persisted[i].chunks = chunks
		for _, chunk := range chunks {
			texts = append(texts, chunk.Content)
		}
	}
	span.Set("chunks", len(texts))
	span.End()

	ctx, span = observability.StartSpan(ctx, "ingest.embed")
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	span.End()
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fault.Transientf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	ctx, span = observability.StartSpan(ctx, "ingest.persist_chunks")
	defer span.End()

	summaries := make([]DocumentSummary, 0, len(docs))
	var records []*ChunkRecord
	var attrs []search.ChunkAttrs
	for _, dc := range persisted {
		for _, chunk := range dc.chunks {
			records = append(records, &ChunkRecord{
				DocumentID: dc.record.ID,
				Position:   chunk.Index,
				Content:    chunk.Content,
				TokenCount: chunk.TokenCount,
				Metadata:   chunk.Metadata,
			})
			attrs = append(attrs, search.ChunkAttrs{
				DocumentID: dc.record.ID,
				DocType:    dc.record.DocType,
				Origin:     dc.record.Origin,
			})
		}
		summaries = append(summaries, DocumentSummary{
			DocumentID: dc.record.ID,
			Title:      dc.record.Title,
			ChunkCount: len(dc.chunks),
		})
	}

	if err := c.chunks.CreateChunks(ctx, records); err != nil {
		return nil, err
	}

	chunkIDs := make([]int64, len(records))
	for i, record := range records {
		chunkIDs[i] = record.ID
	}
	if err := c.embeddings.SaveEmbeddings(ctx, chunkIDs, vectors); err != nil {
		return nil, err
	}

	if err := c.index.Add(vectors, chunkIDs); err != nil {
		return nil, err
	}
	for i, id := range chunkIDs {
		c.catalog.Put(id, attrs[i])
	}

	result := &Result{
		Documents:     summaries,
		ChunksIndexed: len(chunkIDs),
		DurationMS:    float64(time.Since(start).Microseconds()) / 1000,
	}
	log.Info("ingestion complete", "documents", len(docs), "chunks", len(chunkIDs), "duration_ms", result.DurationMS)
	return result, nil
}

// Reindex rebuilds the vector index and chunk catalog from storage. With
// force set the chunks of documents matching the filter are re-embedded;
// otherwise the stored vectors are reused. The rebuilt index always covers
// every stored chunk.
func (c *Coordinator) Reindex(ctx context.Context, force bool, filter Filter) (*Result, error) {
	start := time.Now()

	chunks, err := c.chunks.AllChunks(ctx)
	if err != nil {
		return nil, err
	}
	documents, err := c.documents.AllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	docAttrs := make(map[int64]DocumentRecord, len(documents))
	for _, doc := range documents {
		docAttrs[doc.ID] = doc
	}

	storedIDs, storedVecs, err := c.embeddings.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	byChunk := make(map[int64][]float32, len(storedIDs))
	for i, id := range storedIDs {
		byChunk[id] = storedVecs[i]
	}

	if force {
		var texts []string
		var reembedIDs []int64
		for _, chunk := range chunks {
			if !filter.Matches(docAttrs[chunk.DocumentID]) {
				continue
			}
			texts = append(texts, chunk.Content)
			reembedIDs = append(reembedIDs, chunk.ID)
		}
		if len(texts) > 0 {
			fresh, err := c.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return nil, err
			}
			if err := c.embeddings.SaveEmbeddings(ctx, reembedIDs, fresh); err != nil {
				return nil, err
			}
			for i, id := range reembedIDs {
				byChunk[id] = fresh[i]
			}
		}
	}

	var ids []int64
	var vectors [][]float32
	for _, chunk := range chunks {
		vec, ok := byChunk[chunk.ID]
		if !ok {
			log.Info("chunk has no stored embedding, skipping", "chunk_id", chunk.ID)
			continue
		}
		ids = append(ids, chunk.ID)
		vectors = append(vectors, vec)
	}

	if err := c.index.Rebuild(vectors, ids); err != nil {
		return nil, err
	}

	attrs := make(map[int64]search.ChunkAttrs, len(chunks))
	for _, chunk := range chunks {
		doc := docAttrs[chunk.DocumentID]
		attrs[chunk.ID] = search.ChunkAttrs{
			DocumentID: chunk.DocumentID,
			DocType:    doc.DocType,
			Origin:     doc.Origin,
		}
	}
	c.catalog.Replace(attrs)

	result := &Result{
		ChunksIndexed: len(ids),
		DurationMS:    float64(time.Since(start).Microseconds()) / 1000,
	}
	log.Info("reindex complete", "chunks", len(ids), "force", force, "duration_ms", result.DurationMS)
	return result, nil
}

// DeleteDocument removes a document with its chunks, embeddings and
// archived raw content. The chunk vectors stay in the index until the next
// reindex; search hydration drops hits whose rows are gone.
func (c *Coordinator) DeleteDocument(ctx context.Context, documentID int64) error {
	chunkIDs, err := c.chunks.ChunkIDsByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := c.documents.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := c.embeddings.DeleteByChunkIDs(ctx, chunkIDs); err != nil {
		return err
	}
	if err := c.chunks.DeleteByDocumentID(ctx, documentID); err != nil {
		return err
	}
	if c.archiver != nil {
		if err := c.archiver.DeleteRawDocument(ctx, documentID); err != nil {
			log.Error(err, "failed to delete archived raw document", "document_id", documentID)
		}
	}
	for _, id := range chunkIDs {
		c.catalog.Delete(id)
	}

	log.Info("document deleted", "document_id", documentID, "chunks", len(chunkIDs))
	return nil
}

// RawDocument returns the archived raw content of a document.
func (c *Coordinator) RawDocument(ctx context.Context, documentID int64) ([]byte, error) {
	if c.archiver == nil {
		return nil, fault.Configurationf("raw document archive not configured")
	}
	return c.archiver.RawDocument(ctx, documentID)
}

// EnqueueReindex defers a reindex to the queue.
func (c *Coordinator) EnqueueReindex(ctx context.Context, force bool, filter Filter) (string, error) {
	if c.queue == nil {
		return "", fault.Configurationf("no task queue configured")
	}
	return c.queue.Enqueue(ctx, TaskTypeReindex, ReindexPayload{Force: force, Filter: filter})
}

func (c *Coordinator) shouldDefer(docs []DocumentInput) bool {
	if c.queue == nil || c.cfg.SyncThresholdBytes <= 0 {
		return false
	}
	total := 0
	for _, doc := range docs {
		total += len(doc.Content)
	}
	return total > c.cfg.SyncThresholdBytes
}

func (c *Coordinator) archive(ctx context.Context, doc DocumentRecord, content string) {
	if c.archiver == nil {
		return
	}
	if err := c.archiver.Archive(ctx, doc, content); err != nil {
		log.Error(err, "failed to archive raw document", "document_id", doc.ID)
	}
}

func validate(docs []DocumentInput) error {
	if len(docs) == 0 {
		return fault.Validationf("ingestion batch must not be empty")
	}
	for i, doc := range docs {
		if doc.Content == "" {
			return fault.Validationf("document %d (%q) has empty content", i, doc.Title)
		}
	}
	return nil
}
