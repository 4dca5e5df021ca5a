package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// operatorKey holds the authenticated operator id in the gin context.
const operatorKey = "operatorId"

// operatorMiddleware admits requests carrying a valid bearer token and
// records who sent them.
func (h *Handler) operatorMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	token, ok := strings.CutPrefix(header, tokenType+" ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Infow("operator_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(operatorKey, id)
	c.Next()
}

// operatorID returns the operator admitted by operatorMiddleware, 0 if none.
func operatorID(c *gin.Context) int {
	return c.GetInt(operatorKey)
}

// metricsMiddleware counts requests per route template and status.
func (h *Handler) metricsMiddleware(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	h.metrics.HTTPRequest(route, c.Writer.Status())
}
