package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginWhitelist rejects browser-initiated cross-origin requests whose
// Origin header is not on the configured whitelist. Requests without an
// Origin header (server-to-server calls, most WS handshakes from
// non-browser clients) pass through unchecked — the header is a browser
// signal, not a universal one. An empty whitelist disables the check
// entirely (useful for local development).
func OriginWhitelist(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		if len(allowedSet) == 0 {
			c.Next()
			return
		}
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := allowedSet[origin]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "originNotAllowed"})
			return
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Next()
	}
}
