package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/biosync/biosync/internal/logging"
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// BearerAuth creates a middleware requiring `Authorization: Bearer <secret>`.
// Requests that fail the check are rejected before any handler runs, so an
// unauthorized call has zero side effects. An empty configured secret
// disables the protected endpoints entirely rather than leaving them open.
func BearerAuth(secret string, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "no API secret configured",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		header := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || provided == "" {
			logger.WarnWithContext(c.Request.Context(), "authentication failed: missing bearer secret",
				"client_ip", c.ClientIP(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "bearer secret is required in the Authorization header",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			logger.WarnWithContext(c.Request.Context(), "authentication failed: invalid bearer secret",
				"client_ip", c.ClientIP(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "invalid bearer secret",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		c.Set("authenticated", true)
		c.Next()
	}
}
