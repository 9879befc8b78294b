package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"contextd/src/core/agent"
	"contextd/src/core/cache"
	"contextd/src/core/chunker"
	"contextd/src/core/embedder"
	"contextd/src/core/ingest"
	"contextd/src/core/search"
	"contextd/src/core/system"
	"contextd/src/core/vectorindex"
	"contextd/src/infrastructure/integrations/ollama"
	"contextd/src/infrastructure/job"
	"contextd/src/infrastructure/observability"
	"contextd/src/infrastructure/ratelimit"
	"contextd/src/storage/minioctrl"
	"contextd/src/storage/postgres/chunkctrl"
	"contextd/src/storage/postgres/documentctrl"
	"contextd/src/storage/postgres/embeddingctrl"
	"contextd/src/storage/postgres/querylogctrl"
)

// pipeline bundles every service the serve and worker commands share.
type pipeline struct {
	coordinator  *ingest.Coordinator
	searchSvc    *search.Service
	orchestrator *agent.Orchestrator
	taskSvc      *job.TaskService
	sysSvc       system.Service
	documents    *documentctrl.DocumentService
	index        *vectorindex.Index
	catalog      *search.Catalog
	collector    *observability.Collector
	queryCache   *cache.QueryCache
	limiter      *ratelimit.Limiter
}

func openDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %v", err)
	}

	err = db.AutoMigrate(
		&documentctrl.Document{},
		&chunkctrl.Chunk{},
		&embeddingctrl.Embedding{},
		&querylogctrl.SearchQueryLog{},
		&job.Task{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %v", err)
	}

	// Narrow the vector column to the configured embedding width.
	dim := viper.GetInt("ollama.embed_dimension")
	if err := db.Exec(fmt.Sprintf("ALTER TABLE embeddings ALTER COLUMN vector TYPE vector(%d)", dim)).Error; err != nil {
		return nil, fmt.Errorf("failed to size vector column to %d: %v", dim, err)
	}
	return db, nil
}

func buildSplitter() (ingest.Splitter, error) {
	tokenizer, err := chunker.NewTiktokenTokenizer(viper.GetString("chunker.encoding"))
	if err != nil {
		return nil, err
	}
	cfg := chunker.Config{
		ChunkSize: viper.GetInt("chunker.size"),
		Overlap:   viper.GetInt("chunker.overlap"),
	}
	if viper.GetString("chunker.strategy") == "sentence" {
		return chunker.NewSentenceWindow(cfg, tokenizer)
	}
	return chunker.NewTokenWindow(cfg, tokenizer)
}

// buildPipeline wires the full service graph on top of an open database
// connection and a queue publisher.
func buildPipeline(db *gorm.DB, publisher message.Publisher, logger watermill.LoggerAdapter) (*pipeline, error) {
	oc := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 120 * time.Second,
	})
	dimension := viper.GetInt("ollama.embed_dimension")
	emb := embedder.WithRetry(
		ollama.NewEmbedder(oc, viper.GetString("ollama.embed_model"), dimension),
		embedder.DefaultMaxAttempts,
		500*time.Millisecond,
	)

	splitter, err := buildSplitter()
	if err != nil {
		return nil, err
	}

	index, err := vectorindex.New(dimension, viper.GetInt("index.filter_factor"))
	if err != nil {
		return nil, err
	}
	catalog := search.NewCatalog()

	documentSvc, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document service: %v", err)
	}
	chunkSvc, err := chunkctrl.NewChunkService(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunk service: %v", err)
	}
	embeddingSvc, err := embeddingctrl.NewEmbeddingService(db, viper.GetString("ollama.embed_model"), dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding service: %v", err)
	}
	queryLogSvc, err := querylogctrl.NewQueryLogService(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query log service: %v", err)
	}

	var archiver ingest.Archiver
	if viper.GetBool("minio.enabled") {
		minioSvc, err := minioctrl.NewMinioService(
			viper.GetString("minio.endpoint"),
			viper.GetString("minio.access_key"),
			viper.GetString("minio.secret_key"),
			viper.GetBool("minio.use_ssl"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio service: %v", err)
		}
		if err := minioSvc.EnsureBucketExists(context.Background(), minioctrl.RawDocumentsBucket); err != nil {
			return nil, err
		}
		archiver = minioSvc
	}

	taskRepo := job.NewPostgresTaskRepository(db)
	taskSvc := job.NewTaskService(publisher, taskRepo, logger)

	coordinator, err := ingest.NewCoordinator(
		splitter,
		emb,
		index,
		catalog,
		documentSvc,
		chunkSvc,
		embeddingSvc,
		archiver,
		taskSvc,
		ingest.Config{SyncThresholdBytes: viper.GetInt("ingest.sync_threshold_bytes")},
	)
	if err != nil {
		return nil, err
	}

	searchSvc, err := search.NewService(emb, index, catalog, chunkSvc, documentSvc, queryLogSvc)
	if err != nil {
		return nil, err
	}
	retriever := searchRetriever{svc: searchSvc}

	collector := observability.NewCollector()

	registry := agent.NewRegistry()
	tools := []agent.Tool{
		agent.SearchDocumentsTool(retriever),
		agent.GetSourcesTool(documentSvc),
		agent.GetStatsTool(func() interface{} { return collector.Snapshot() }),
		agent.CreateTicketTool(agent.NewMemoryTicketStore()),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}

	reasoner := ollama.NewReasoner(oc, viper.GetString("ollama.chat_model"))
	orchestrator, err := agent.NewOrchestrator(retriever, reasoner, registry, agent.Config{
		TopK:        viper.GetInt("agent.top_k"),
		MaxAttempts: viper.GetInt("agent.max_attempts"),
		Pricing: agent.Pricing{
			InputPer1K:  viper.GetFloat64("pricing.input_per_1k"),
			OutputPer1K: viper.GetFloat64("pricing.output_per_1k"),
		},
	})
	if err != nil {
		return nil, err
	}

	sysSvc := system.NewService(
		func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		func(ctx context.Context) error {
			_, err := oc.Models(ctx)
			return err
		},
		index.Len,
	)

	return &pipeline{
		coordinator:  coordinator,
		searchSvc:    searchSvc,
		orchestrator: orchestrator,
		taskSvc:      taskSvc,
		sysSvc:       sysSvc,
		documents:    documentSvc,
		index:        index,
		catalog:      catalog,
		collector:    collector,
		queryCache:   cache.New(viper.GetInt("cache.max_size"), viper.GetDuration("cache.ttl")),
		limiter:      ratelimit.PerMinute(viper.GetInt("ratelimit.per_minute")),
	}, nil
}

// registerTaskHandlers binds the queue task types to the coordinator.
func (p *pipeline) registerTaskHandlers() {
	p.taskSvc.Register(ingest.TaskTypeIngest, func(ctx context.Context, payload json.RawMessage) error {
		var req ingest.IngestPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("failed to unmarshal ingest payload: %w", err)
		}
		_, err := p.coordinator.IngestSync(ctx, req.Documents)
		return err
	})
	p.taskSvc.Register(ingest.TaskTypeReindex, func(ctx context.Context, payload json.RawMessage) error {
		var req ingest.ReindexPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return fmt.Errorf("failed to unmarshal reindex payload: %w", err)
			}
		}
		_, err := p.coordinator.Reindex(ctx, req.Force, req.Filter)
		return err
	})
}

// searchRetriever adapts the search service to the agent's retriever.
type searchRetriever struct {
	svc *search.Service
}

func (r searchRetriever) Retrieve(ctx context.Context, query string, topK int) ([]agent.Source, error) {
	resp, err := r.svc.Search(ctx, search.Request{Query: query, TopK: &topK})
	if err != nil {
		return nil, err
	}
	sources := make([]agent.Source, 0, len(resp.Results))
	for _, result := range resp.Results {
		sources = append(sources, agent.Source{
			ChunkID:    result.ChunkID,
			DocumentID: result.DocumentID,
			Title:      result.Title,
			Origin:     result.Origin,
			Content:    result.Content,
			Score:      result.Score,
			Metadata:   result.Metadata,
		})
	}
	return sources, nil
}
