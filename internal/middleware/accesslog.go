package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modplane/server/internal/logger"
)

// AccessLog emits one structured line per request with the fields an
// operator greps for: method, path, status, latency, and the request
// id RequestID attached earlier in the chain.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		requestID, _ := c.Get("requestId")
		log := logger.HTTP().Info()
		if c.Writer.Status() >= 500 {
			log = logger.HTTP().Error()
		} else if c.Writer.Status() >= 400 {
			log = logger.HTTP().Warn()
		}

		log.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("requestId", fmtRequestID(requestID)).
			Str("clientIp", c.ClientIP()).
			Msg("request")
	}
}

func fmtRequestID(v any) string {
	id, ok := v.(string)
	if !ok {
		return ""
	}
	return id
}
