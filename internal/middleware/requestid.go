// Package middleware implements the ambient HTTP middleware chain (A6):
// request ID tagging, structured access logging, security headers, body
// size limits, per-IP rate limiting, and the browser/WS origin
// whitelist check.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID assigns a fresh UUID to every request that doesn't already
// carry one, and echoes it back on the response so client and server
// logs can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestId", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
