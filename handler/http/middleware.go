package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contextd/src/infrastructure/log"
	"contextd/src/infrastructure/observability"
)

// rateLimitMiddleware rejects callers that exhausted their per-IP bucket.
func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if !h.limiter.Allow(ip) {
			log.Info("rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}

// traceMiddleware opens a trace per request and finishes it with the
// response status.
func (h *Handler) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := c.Request.Method + " " + c.FullPath()
		trace := observability.NewTrace(operation, h.collector)
		c.Request = c.Request.WithContext(observability.WithTrace(c.Request.Context(), trace))
		c.Header("X-Trace-ID", trace.ID)

		c.Next()

		status := c.Writer.Status()
		trace.Set("status", status)
		trace.Finish(status >= http.StatusInternalServerError)
	}
}
