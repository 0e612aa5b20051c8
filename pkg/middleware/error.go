package middleware

import (
	"errors"
	"net/http"

	"promoflow/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error. BaseError codes map to
// their HTTP status, anything else is a 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		status := errutil.StatusOf(last.Err)
		code := status.HTTPStatus()
		if code >= http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
		}

		body := errutil.BaseError{Code: status, Message: last.Err.Error()}
		if be, ok := asBase(last.Err); ok {
			body = be
		}

		c.AbortWithStatusJSON(code, body.JSON())
	}
}

func asBase(err error) (errutil.BaseError, bool) {
	var be errutil.BaseError
	ok := errors.As(err, &be)
	return be, ok
}
