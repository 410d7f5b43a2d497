package middleware

import (
	"errors"
	"net/http"

	"giveaway-fulfillment/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as a BaseError JSON body.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var v errutil.BaseError
		if errors.As(last.Err, &v) {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: last.Err.Error(),
		}.JSON())
	}
}
