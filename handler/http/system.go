package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CheckHealth reports component status and the current index size. Without
// a system service it degrades to a bare liveness response.
func (h *Handler) CheckHealth(c *gin.Context) {
	if h.sysService == nil {
		resp := gin.H{"status": "ok"}
		if h.indexSize != nil {
			resp["indexed_chunks"] = h.indexSize()
		}
		sendJSON(c, http.StatusOK, resp)
		return
	}

	status, err := h.sysService.CheckHealth(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, status)
}

// UsageMetrics reports aggregate counters: requests, errors, latency,
// token and cost totals, cache effectiveness.
func (h *Handler) UsageMetrics(c *gin.Context) {
	resp := gin.H{}
	if h.collector != nil {
		resp["usage"] = h.collector.Snapshot()
	}
	if h.queryCache != nil {
		resp["cache"] = h.queryCache.Stats()
	}
	if h.indexSize != nil {
		resp["indexed_chunks"] = h.indexSize()
	}
	sendJSON(c, http.StatusOK, resp)
}

// RecentQueries reports the latest logged search queries.
func (h *Handler) RecentQueries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.searchService.RecentQueries(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, gin.H{"queries": records})
}
