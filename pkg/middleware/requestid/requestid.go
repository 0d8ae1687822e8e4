// Package requestid tags every request with an identifier that survives into
// logs and response headers, so a booking failure can be traced end to end.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// Header is echoed back on every response.
	Header = "X-Request-ID"

	contextKey = "request_id"
	maxLen     = 64
)

// Middleware adopts the caller's request ID when present and well-formed,
// otherwise mints a fresh uuid.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the request ID for the current request, or "" outside the
// middleware.
func Value(c *gin.Context) string {
	if v, ok := c.Get(contextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
