package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one line per request with method, path, status and
// latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Printf("api: %s %s -> %d (%s)",
			c.Request.Method, path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}
