// Package http exposes the REST API.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contextd/src/core/agent"
	"contextd/src/core/cache"
	"contextd/src/core/fault"
	"contextd/src/core/ingest"
	"contextd/src/core/search"
	"contextd/src/core/system"
	"contextd/src/infrastructure/job"
	"contextd/src/infrastructure/observability"
	"contextd/src/infrastructure/ratelimit"
)

// SearchService runs similarity searches.
type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	RecentQueries(ctx context.Context, limit int) ([]search.QueryLogRecord, error)
}

// AgentService runs agent queries.
type AgentService interface {
	Query(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// IngestService drives the ingestion pipeline.
type IngestService interface {
	Ingest(ctx context.Context, docs []ingest.DocumentInput) (*ingest.Result, error)
	Reindex(ctx context.Context, force bool, filter ingest.Filter) (*ingest.Result, error)
	EnqueueReindex(ctx context.Context, force bool, filter ingest.Filter) (string, error)
	DeleteDocument(ctx context.Context, documentID int64) error
	RawDocument(ctx context.Context, documentID int64) ([]byte, error)
}

// TaskLookup fetches background task records.
type TaskLookup interface {
	Lookup(ctx context.Context, id string) (*job.Task, error)
}

type Handler struct {
	searchService SearchService
	agentService  AgentService
	ingestService IngestService
	tasks         TaskLookup
	sysService    system.Service
	queryCache    *cache.QueryCache
	collector     *observability.Collector
	limiter       *ratelimit.Limiter
	indexSize     func() int
}

// NewHandler wires the API surface. tasks, sysService, queryCache,
// collector and limiter may be nil to disable the corresponding feature.
func NewHandler(
	searchService SearchService,
	agentService AgentService,
	ingestService IngestService,
	tasks TaskLookup,
	sysService system.Service,
	queryCache *cache.QueryCache,
	collector *observability.Collector,
	limiter *ratelimit.Limiter,
	indexSize func() int,
) *Handler {
	return &Handler{
		searchService: searchService,
		agentService:  agentService,
		ingestService: ingestService,
		tasks:         tasks,
		sysService:    sysService,
		queryCache:    queryCache,
		collector:     collector,
		limiter:       limiter,
		indexSize:     indexSize,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/v1/health", h.CheckHealth)

	v1 := r.Group("/api/v1")
	v1.Use(h.rateLimitMiddleware(), h.traceMiddleware())

	v1.POST("/documents", h.IngestDocuments)
	v1.DELETE("/documents/:id", h.DeleteDocument)
	v1.GET("/documents/:id/raw", h.RawDocument)
	v1.GET("/tasks/:id", h.GetTask)
	v1.POST("/reindex", h.Reindex)
	v1.POST("/search", h.Search)
	v1.POST("/agent/query", h.AgentQuery)
	v1.GET("/metrics/usage", h.UsageMetrics)
	v1.GET("/metrics/queries", h.RecentQueries)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, fault.ErrValidation):
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case errors.Is(err, fault.ErrNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrRateLimited):
		code = "RATE_LIMITED"
		status = http.StatusTooManyRequests
	case errors.Is(err, fault.ErrUnavailable), errors.Is(err, fault.ErrTransient):
		code = "UPSTREAM_UNAVAILABLE"
		status = http.StatusServiceUnavailable
	case errors.Is(err, fault.ErrConfiguration):
		code = "NOT_CONFIGURED"
		status = http.StatusServiceUnavailable
	case status == http.StatusBadRequest:
		code = "INVALID_REQUEST"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
