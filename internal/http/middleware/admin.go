package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminToken carries the operator token for /admin routes.
const HeaderAdminToken = "X-Admin-Token"

// AdminOnly guards operator routes with a shared token. An empty token
// disables the routes entirely (404) so an unconfigured deployment exposes
// nothing.
func AdminOnly(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		rid := c.Writer.Header().Get(requestIDHeader)
		if len(want) == 0 {
			c.Set(ErrorCodeKey, "not_found")
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"request_id": rid,
				"code":       "not_found",
				"message":    "route not found",
			})
			return
		}
		got := []byte(c.GetHeader(HeaderAdminToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			LoggerFrom(c).Warn().Str("client", Redact(ClientID(c))).Msg("admin token rejected")
			c.Set(ErrorCodeKey, "unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": rid,
				"code":       "unauthorized",
				"message":    "missing or invalid admin token",
			})
			return
		}
		c.Next()
	}
}
