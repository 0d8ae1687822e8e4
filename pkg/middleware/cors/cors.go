// Package cors implements the cross-origin policy for the booking API:
// browser clients (teacher dashboard, student booking page) call from
// configured origins; everything else gets no CORS grants.
package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedHeaders = "Content-Type, X-Requested-With, X-Request-ID"
	allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	preflightCache = "600"
)

// New builds the CORS middleware. An empty origin list, or a "*" entry,
// allows any origin; otherwise the Origin header must match one of the
// configured values exactly (trailing slashes ignored).
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAny := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
			continue
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		h.Set("Vary", "Origin")

		if origin != "" {
			if allowAny {
				h.Set("Access-Control-Allow-Origin", origin)
			} else if _, ok := allowed[strings.TrimRight(origin, "/")]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Headers", allowedHeaders)
			h.Set("Access-Control-Allow-Methods", allowedMethods)
			h.Set("Access-Control-Max-Age", preflightCache)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
