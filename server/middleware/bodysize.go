package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/gridstore/errors"
	"github.com/kbukum/gridstore/util"
)

const defaultMaxBodySize = 64 * 1024 * 1024

// BodySizeLimit caps the request body at maxSize ("64MB", "512KB").
// Reads past the limit fail with *http.MaxBytesError.
func BodySizeLimit(maxSize string) gin.HandlerFunc {
	limit := util.ParseSize(maxSize, defaultMaxBodySize)
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			appErr := apperrors.PayloadTooLarge("body", limit)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
