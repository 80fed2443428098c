package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modplane/server/internal/logger"
)

// AbortWithError writes the AppError's JSON envelope and stops the chain.
func AbortWithError(c *gin.Context, err *AppError) {
	log := logger.HTTP()
	event := log.Warn()
	if err.StatusCode >= 500 {
		event = log.Error()
	}
	event.Str("code", err.Code).Int("status", err.StatusCode).Str("path", c.Request.URL.Path).Msg(err.Message)

	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

// Recovery turns a panic inside a handler into a 500 response instead of
// crashing the process. Module or database failures must never leak a Go
// panic to a client (§7).
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.HTTP().Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, Internal().ToResponse())
	})
}
