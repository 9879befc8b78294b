package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates usage counters for the whole process. Counter
// updates use atomics; the per-operation map is guarded by a mutex.
type Collector struct {
	start time.Time

	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	inputTokens   atomic.Int64
	outputTokens  atomic.Int64

	mu           sync.Mutex
	cost         float64
	perOperation map[string]*operationStats
}

type operationStats struct {
	count   int64
	errors  int64
	totalMS float64
}

// OperationStats is the snapshot view of one operation's counters.
type OperationStats struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	TotalRequests int64                     `json:"total_requests"`
	TotalErrors   int64                     `json:"total_errors"`
	CacheHits     int64                     `json:"cache_hits"`
	CacheMisses   int64                     `json:"cache_misses"`
	CacheHitRate  float64                   `json:"cache_hit_rate"`
	InputTokens   int64                     `json:"input_tokens"`
	OutputTokens  int64                     `json:"output_tokens"`
	CostEstimate  float64                   `json:"cost_estimate"`
	Operations    map[string]OperationStats `json:"operations"`
}

// NewCollector returns a collector with its uptime clock started.
func NewCollector() *Collector {
	return &Collector{
		start:        time.Now(),
		perOperation: make(map[string]*operationStats),
	}
}

// RecordCacheHit counts one cache hit.
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Add(1)
}

// RecordCacheMiss counts one cache miss.
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Add(1)
}

// RecordUsage accumulates token and cost totals from one reasoning run.
func (c *Collector) RecordUsage(inputTokens, outputTokens int, cost float64) {
	c.inputTokens.Add(int64(inputTokens))
	c.outputTokens.Add(int64(outputTokens))
	c.mu.Lock()
	c.cost += cost
	c.mu.Unlock()
}

func (c *Collector) record(operation string, duration time.Duration, failed bool) {
	c.totalRequests.Add(1)
	if failed {
		c.totalErrors.Add(1)
	}

	ms := float64(duration.Microseconds()) / 1000

	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.perOperation[operation]
	if !ok {
		stats = &operationStats{}
		c.perOperation[operation] = stats
	}
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalMS += ms
}

// Snapshot returns the current aggregates. Cache hit rate is a percentage
// of lookups; zero lookups report zero.
func (c *Collector) Snapshot() Snapshot {
	hits := c.cacheHits.Load()
	misses := c.cacheMisses.Load()
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make(map[string]OperationStats, len(c.perOperation))
	for name, stats := range c.perOperation {
		view := OperationStats{Count: stats.count, Errors: stats.errors}
		if stats.count > 0 {
			view.AvgLatencyMS = stats.totalMS / float64(stats.count)
		}
		ops[name] = view
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.start).Seconds(),
		TotalRequests: c.totalRequests.Load(),
		TotalErrors:   c.totalErrors.Load(),
		CacheHits:     hits,
		CacheMisses:   misses,
		CacheHitRate:  hitRate,
		InputTokens:   c.inputTokens.Load(),
		OutputTokens:  c.outputTokens.Load(),
		CostEstimate:  c.cost,
		Operations:    ops,
	}
}
