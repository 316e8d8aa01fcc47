package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

const hstsHeader = "max-age=31536000; includeSubDomains"

// SecureHeaders sets the response headers of a JSON API that serves tenant
// billing data. HSTS is only sent when the API is behind TLS.
func SecureHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// Bills and statements must not sit in shared caches
		h.Set("Cache-Control", "no-store")
		if hsts {
			h.Set("Strict-Transport-Security", hstsHeader)
		}
		c.Next()
	}
}

// Timeout bounds the request context. Service calls observe the deadline
// through the context they receive.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-Timeout", timeout.String())
		c.Next()
	}
}
