package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contextd/src/core/fault"
	"contextd/src/core/ingest"
)

type ingestRequest struct {
	Documents []ingest.DocumentInput `json:"documents" binding:"required"`
}

// IngestDocuments accepts a batch of documents. Small batches run inline
// and return the result; large batches are queued and return the task id.
func (h *Handler) IngestDocuments(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), req.Documents)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if result.Deferred {
		sendJSON(c, http.StatusAccepted, result)
		return
	}
	sendJSON(c, http.StatusCreated, result)
}

// DeleteDocument removes a document with its chunks, embeddings and
// archived raw content. Index vectors drop out on the next reindex.
func (h *Handler) DeleteDocument(c *gin.Context) {
	documentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fault.Validationf("invalid document id %q", c.Param("id")))
		return
	}

	if err := h.ingestService.DeleteDocument(c.Request.Context(), documentID); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RawDocument serves the archived raw content of a document.
func (h *Handler) RawDocument(c *gin.Context) {
	documentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fault.Validationf("invalid document id %q", c.Param("id")))
		return
	}

	data, err := h.ingestService.RawDocument(c.Request.Context(), documentID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// GetTask reports the status of a background task.
func (h *Handler) GetTask(c *gin.Context) {
	if h.tasks == nil {
		sendError(c, http.StatusServiceUnavailable, fault.Configurationf("task queue not configured"))
		return
	}

	task, err := h.tasks.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, fault.Validationf("%v", err))
		return
	}
	if task == nil {
		sendError(c, http.StatusNotFound, fault.NotFoundf("task %s", c.Param("id")))
		return
	}

	sendJSON(c, http.StatusOK, task)
}

type reindexRequest struct {
	Force  bool          `json:"force"`
	Filter ingest.Filter `json:"filter"`
}

// Reindex rebuilds the vector index. With a queue configured the rebuild
// runs in the background and the task id is returned.
func (h *Handler) Reindex(c *gin.Context) {
	var req reindexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			sendError(c, http.StatusBadRequest, err)
			return
		}
	}

	if h.tasks != nil {
		taskID, err := h.ingestService.EnqueueReindex(c.Request.Context(), req.Force, req.Filter)
		if err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
		sendJSON(c, http.StatusAccepted, gin.H{"task_id": taskID})
		return
	}

	result, err := h.ingestService.Reindex(c.Request.Context(), req.Force, req.Filter)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, result)
}
