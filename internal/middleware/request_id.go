// Package middleware provides the admin HTTP surface's cross-cutting
// concerns: request correlation, security headers, structured logging,
// timeouts, body size limits, and rate limiting.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for the request correlation id.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key for the request id.
	RequestIDKey = "request_id"
)

// RequestID generates or echoes a correlation id for each request, setting
// it in the gin context and on the response so callers can reference it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request id from the gin context.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
