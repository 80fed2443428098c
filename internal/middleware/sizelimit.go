package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultMaxBodyBytes = 10 << 20 // 10 MB

// SizeLimit caps request bodies at maxBytes (default 10 MB). The 30s
// multipart allowance in §4.4 is a timeout concession, not a size one:
// a large multipart upload still gets 30s to be dispatched and answered,
// but it must still fit under this cap to be read at all.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
