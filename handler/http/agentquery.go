package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contextd/src/core/agent"
	"contextd/src/core/cache"
	"contextd/src/infrastructure/observability"
)

// AgentQuery runs the full agent loop. Stateless queries, those without
// conversation history, are served from the cache when possible.
func (h *Handler) AgentQuery(c *gin.Context) {
	var req agent.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	trace := observability.FromContext(ctx)
	cacheable := h.queryCache != nil && len(req.History) == 0

	var key string
	if cacheable {
		key = cache.Key("agent", req.Query, map[string]interface{}{
			"top_k": req.TopK,
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

	resp, err := h.agentService.Query(ctx, req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordUsage(resp.Usage.Input, resp.Usage.Output, resp.CostEstimate)
	}
	trace.Set("tool_calls", len(resp.ToolCalls))
	trace.Set("input_tokens", resp.Usage.Input)
	trace.Set("output_tokens", resp.Usage.Output)

	if cacheable {
		h.queryCache.Set(key, resp)
	}
	sendJSON(c, http.StatusOK, resp)
}
