package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDKey is the gin context key holding the request trace ID.
const TraceIDKey = "trace_id"

// TraceIDHeader carries the trace ID on requests and responses, so a
// caller can correlate its own logs with ours.
const TraceIDHeader = "X-Trace-ID"

// TraceID tags every request with a trace ID: the caller's, if it sent
// one, otherwise a fresh UUID. The ID is echoed in the response header.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

// GetTraceID returns the request's trace ID, or "" outside a traced request.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
