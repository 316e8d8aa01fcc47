package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rental/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request bodies at limit bytes. A declared Content-Length over
// the cap is refused up front with 413; chunked bodies fail on read instead.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			resp := dto.NewErrorResponse(dto.ErrCodeTooLarge, "request body is too large", GetRequestID(c))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
