package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxJSONPayloadSize is the maximum size for a publish/lattice JSON body.
const MaxJSONPayloadSize int64 = 5 * 1024 * 1024 // 5 MB

// RequestSizeLimiter rejects requests whose body exceeds maxSize.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":       "request entity too large",
				"max_size_mb": float64(maxSize) / (1024 * 1024),
			})
			return
		}

		// Guards against a lying Content-Length header.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}

// JSONSizeLimiter caps request bodies at MaxJSONPayloadSize.
func JSONSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxJSONPayloadSize)
}
