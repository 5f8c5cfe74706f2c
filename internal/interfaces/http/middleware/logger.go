package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"stablepay.backend/pkg/logger"
)

var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// LoggerMiddleware logs HTTP requests using the structured logger.
// Probe and scrape endpoints are not logged.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if quietPaths[path] {
			c.Next()
			return
		}
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		logger.LogRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
