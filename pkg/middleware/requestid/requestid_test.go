package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, inbound string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestMintsIDWhenAbsent(t *testing.T) {
	w, seen := run(t, "")
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(Header))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestAdoptsCallerID(t *testing.T) {
	w, seen := run(t, "caller-supplied-id")
	assert.Equal(t, "caller-supplied-id", seen)
	assert.Equal(t, "caller-supplied-id", w.Header().Get(Header))
}

func TestReplacesOversizedID(t *testing.T) {
	_, seen := run(t, strings.Repeat("x", 200))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "oversized inbound ids are replaced, not echoed")
}
