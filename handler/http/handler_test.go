package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apihttp "contextd/handler/http"
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

type fakeSearch struct {
	calls   int
	resp    *search.Response
	records []search.QueryLogRecord
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	f.calls++
	return f.resp, f.err
}

func (f *fakeSearch) RecentQueries(ctx context.Context, limit int) ([]search.QueryLogRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakeAgent struct {
	calls int
	resp  *agent.Response
	err   error
}

func (f *fakeAgent) Query(ctx context.Context, req agent.Request) (*agent.Response, error) {
	f.calls++
	return f.resp, f.err
}

type fakeIngest struct {
	result    *ingest.Result
	err       error
	reindexed bool
	deleted   []int64
	raw       map[int64][]byte
}

func (f *fakeIngest) Ingest(ctx context.Context, docs []ingest.DocumentInput) (*ingest.Result, error) {
	return f.result, f.err
}

func (f *fakeIngest) Reindex(ctx context.Context, force bool, filter ingest.Filter) (*ingest.Result, error) {
	f.reindexed = true
	return f.result, f.err
}

func (f *fakeIngest) EnqueueReindex(ctx context.Context, force bool, filter ingest.Filter) (string, error) {
	return "9", f.err
}

func (f *fakeIngest) DeleteDocument(ctx context.Context, documentID int64) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeIngest) RawDocument(ctx context.Context, documentID int64) ([]byte, error) {
	data, ok := f.raw[documentID]
	if !ok {
		return nil, fault.NotFoundf("raw document %d", documentID)
	}
	return data, nil
}

type fakeTasks struct {
	task *job.Task
}

func (f *fakeTasks) Lookup(ctx context.Context, id string) (*job.Task, error) {
	return f.task, nil
}

type env struct {
	router *gin.Engine
	search *fakeSearch
	agent  *fakeAgent
	ingest *fakeIngest
}

func newEnv(t *testing.T, opts func(*env) *apihttp.Handler) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		router: gin.New(),
		search: &fakeSearch{resp: &search.Response{Results: []search.Result{}}},
		agent:  &fakeAgent{resp: &agent.Response{Response: "hi", State: agent.StateComplete}},
		ingest: &fakeIngest{result: &ingest.Result{ChunksIndexed: 2}},
	}
	handler := opts(e)
	handler.RegisterRoutes(e.router)
	return e
}

func defaultHandler(e *env) *apihttp.Handler {
	return apihttp.NewHandler(e.search, e.agent, e.ingest, nil, nil, nil, nil, nil, func() int { return 3 })
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	e := newEnv(t, defaultHandler)
	w := do(t, e.router, "GET", "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" || resp["indexed_chunks"] != float64(3) {
		t.Fatalf("health response: %v", resp)
	}
}

func TestHealthWithComponentStatus(t *testing.T) {
	sysSvc := system.NewService(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return errors.New("connection refused") },
		func() int { return 5 },
	)
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, nil, sysSvc, nil, nil, nil, nil)
	})

	w := do(t, e.router, "GET", "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var status system.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "unhealthy" {
		t.Fatalf("status %q, want unhealthy with ollama down", status.Status)
	}
	if status.Components.Postgres != system.StatusUp || status.Components.Ollama != system.StatusDown {
		t.Fatalf("components: %+v", status.Components)
	}
	if status.IndexedChunks != 5 {
		t.Fatalf("indexed chunks %d, want 5", status.IndexedChunks)
	}
}

func TestIngestReturnsCreated(t *testing.T) {
	e := newEnv(t, defaultHandler)
	w := do(t, e.router, "POST", "/api/v1/documents", map[string]interface{}{
		"documents": []map[string]string{{"title": "Doc", "content": "text"}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
}

func TestIngestDeferredReturnsAccepted(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.ingest.result = &ingest.Result{Deferred: true, TaskID: "7"}
		return defaultHandler(e)
	})
	w := do(t, e.router, "POST", "/api/v1/documents", map[string]interface{}{
		"documents": []map[string]string{{"title": "Doc", "content": "text"}},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	e := newEnv(t, defaultHandler)
	w := do(t, e.router, "DELETE", "/api/v1/documents/42", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	if len(e.ingest.deleted) != 1 || e.ingest.deleted[0] != 42 {
		t.Fatalf("deleted ids: %v", e.ingest.deleted)
	}
}

func TestDeleteDocumentErrors(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.ingest.err = fault.NotFoundf("document 42")
		return defaultHandler(e)
	})
	if w := do(t, e.router, "DELETE", "/api/v1/documents/42", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown document: got status %d", w.Code)
	}
	if w := do(t, e.router, "DELETE", "/api/v1/documents/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: got status %d", w.Code)
	}
}

func TestRawDocument(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.ingest.raw = map[int64][]byte{7: []byte("raw body")}
		return defaultHandler(e)
	})

	w := do(t, e.router, "GET", "/api/v1/documents/7/raw", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "raw body" {
		t.Fatalf("body %q", w.Body.String())
	}

	if w := do(t, e.router, "GET", "/api/v1/documents/8/raw", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing archive: got status %d", w.Code)
	}
}

func TestRecentQueries(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.search.records = []search.QueryLogRecord{
			{Query: "vpn", TopK: 5, ResultCount: 2},
			{Query: "password", TopK: 5, ResultCount: 1},
		}
		return defaultHandler(e)
	})

	w := do(t, e.router, "GET", "/api/v1/metrics/queries?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Queries []search.QueryLogRecord `json:"queries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Queries) != 1 || resp.Queries[0].Query != "vpn" {
		t.Fatalf("queries: %+v", resp.Queries)
	}
}

func TestValidationErrorMapsTo400(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.search.err = fault.Validationf("top_k must be positive")
		return defaultHandler(e)
	})
	w := do(t, e.router, "POST", "/api/v1/search", map[string]interface{}{"query": "x", "top_k": -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", w.Code)
	}
	var resp apihttp.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Fatalf("got code %s", resp.Code)
	}
}

func TestTransientErrorMapsTo503(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.search.err = fault.Transientf("embedder offline")
		return defaultHandler(e)
	})
	w := do(t, e.router, "POST", "/api/v1/search", map[string]interface{}{"query": "x"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestSearchCacheHitSkipsService(t *testing.T) {
	queryCache := cache.New(10, time.Hour)
	collector := observability.NewCollector()
	e := newEnv(t, func(e *env) *apihttp.Handler {
		e.search.resp = &search.Response{Results: []search.Result{{ChunkID: 1, Title: "Doc"}}}
		return apihttp.NewHandler(e.search, e.agent, e.ingest, nil, nil, queryCache, collector, nil, nil)
	})

	body := map[string]interface{}{"query": "reset password", "top_k": 2}
	if w := do(t, e.router, "POST", "/api/v1/search", body); w.Code != http.StatusOK {
		t.Fatalf("first search: %d", w.Code)
	}
	w := do(t, e.router, "POST", "/api/v1/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("second search: %d", w.Code)
	}

	if e.search.calls != 1 {
		t.Fatalf("service called %d times, want 1", e.search.calls)
	}
	snap := collector.Snapshot()
	if snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Fatalf("cache counters: hits=%d misses=%d", snap.CacheHits, snap.CacheMisses)
	}
}

func TestAgentQueryWithHistoryBypassesCache(t *testing.T) {
	queryCache := cache.New(10, time.Hour)
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, nil, nil, queryCache, nil, nil, nil)
	})

	body := map[string]interface{}{
		"query":   "and then?",
		"history": []map[string]string{{"role": "user", "content": "hello"}},
	}
	do(t, e.router, "POST", "/api/v1/agent/query", body)
	do(t, e.router, "POST", "/api/v1/agent/query", body)

	if e.agent.calls != 2 {
		t.Fatalf("agent called %d times, want 2 (history must bypass cache)", e.agent.calls)
	}
}

func TestGetTask(t *testing.T) {
	task := &job.Task{ID: 7, TaskType: "ingest", Status: job.TaskStatusRunning}
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, &fakeTasks{task: task}, nil, nil, nil, nil, nil)
	})

	w := do(t, e.router, "GET", "/api/v1/tasks/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	var got job.Task
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != 7 || got.Status != job.TaskStatusRunning {
		t.Fatalf("task: %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, &fakeTasks{}, nil, nil, nil, nil, nil)
	})
	if w := do(t, e.router, "GET", "/api/v1/tasks/99", nil); w.Code != http.StatusNotFound {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestReindexInlineWithoutQueue(t *testing.T) {
	e := newEnv(t, defaultHandler)
	w := do(t, e.router, "POST", "/api/v1/reindex", map[string]interface{}{"force": true})
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	if !e.ingest.reindexed {
		t.Fatal("inline reindex not executed")
	}
}

func TestReindexQueuedWithTasks(t *testing.T) {
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, &fakeTasks{}, nil, nil, nil, nil, nil)
	})
	w := do(t, e.router, "POST", "/api/v1/reindex", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	limiter := ratelimit.PerMinute(2)
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, nil, nil, nil, nil, limiter, nil)
	})

	body := map[string]interface{}{"query": "x"}
	for i := 0; i < 2; i++ {
		if w := do(t, e.router, "POST", "/api/v1/search", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}
	w := do(t, e.router, "POST", "/api/v1/search", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestUsageMetrics(t *testing.T) {
	collector := observability.NewCollector()
	collector.RecordUsage(100, 50, 0.002)
	queryCache := cache.New(5, time.Minute)
	e := newEnv(t, func(e *env) *apihttp.Handler {
		return apihttp.NewHandler(e.search, e.agent, e.ingest, nil, nil, queryCache, collector, nil, func() int { return 12 })
	})

	w := do(t, e.router, "GET", "/api/v1/metrics/usage", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"usage", "cache", "indexed_chunks"} {
		if _, ok := resp[key]; !ok {
			t.Fatalf("metrics response missing %s: %s", key, w.Body.String())
		}
	}
}
