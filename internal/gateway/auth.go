package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aegis/internal/config"
)

// authMiddleware enforces the configured client authentication scheme on the
// JSON-RPC endpoint. Scheme none, or an empty configured key, leaves the
// gateway open. Otherwise requests without a matching credential fail closed.
func authMiddleware(cfg config.Gateway) gin.HandlerFunc {
	scheme := cfg.Authentication.Scheme
	key := cfg.Authentication.APIKey

	return func(c *gin.Context) {
		if scheme == config.AuthNone || key == "" {
			c.Next()
			return
		}

		if credential(c) == key {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication required",
		})
	}
}

// credential extracts the presented API key: X-API-KEY header, then bearer
// token, then api_key query parameter.
func credential(c *gin.Context) string {
	if v := c.GetHeader("X-API-KEY"); v != "" {
		return v
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("api_key")
}
