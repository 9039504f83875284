package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"estatecore/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error recorded on the gin context as structured
// JSON. Outside production the response also carries a stack to help debug
// scheduler/queue failures surfaced by the admin routes.
func Error(appEnv string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		body := gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": last.Err.Error(),
			},
		}
		if appEnv != "production" {
			body["stack"] = string(debug.Stack())
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}
