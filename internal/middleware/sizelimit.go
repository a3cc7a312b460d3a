package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for the form envelope around an uploaded
// file of the maximum size.
const multipartOverhead = 64 << 10

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize  int64 // in bytes
	ErrorMessage string
}

func UploadSizeLimitConfig(maxFileBytes int64) SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:  maxFileBytes + multipartOverhead,
		ErrorMessage: "Request size exceeds limit",
	}
}

// SizeLimit rejects declared oversize bodies up front and caps the reader
// for chunked requests that do not declare a length.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > config.MaxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("%s: body size exceeds %d bytes",
					config.ErrorMessage, config.MaxBodySize),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		c.Next()
	}
}
