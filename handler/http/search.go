package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contextd/src/core/cache"
	"contextd/src/core/search"
	"contextd/src/infrastructure/observability"
)

// Search runs a similarity search, serving repeated queries from the
// cache.
func (h *Handler) Search(c *gin.Context) {
	var req search.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	trace := observability.FromContext(ctx)

	var key string
	if h.queryCache != nil {
		key = cache.Key("search", req.Query, map[string]interface{}{
			"top_k":    req.TopK,
			"doc_type": req.DocType,
			"origin":   req.Origin,
		})
		if cached, ok := h.queryCache.Get(key); ok {
			h.recordCache(true)
			trace.Set("cache_hit", true)
			sendJSON(c, http.StatusOK, cached)
			return
		}
		h.recordCache(false)
		trace.Set("cache_hit", false)
	}

	resp, err := h.searchService.Search(ctx, req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if h.queryCache != nil {
		h.queryCache.Set(key, resp)
	}
	sendJSON(c, http.StatusOK, resp)
}

func (h *Handler) recordCache(hit bool) {
	if h.collector == nil {
		return
	}
	if hit {
		h.collector.RecordCacheHit()
	} else {
		h.collector.RecordCacheMiss()
	}
}
