package middleware

import (
	"net/http"

	ierr "pluto/internal/errors"
	"pluto/internal/logger"
	"pluto/pkg/response"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached with c.Error using the
// standard envelope. The status comes from the error kind.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)
		if status >= http.StatusInternalServerError {
			log.Errorw("request failed",
				"request_id", GetRequestID(c),
				"path", c.FullPath(),
				"code", ierr.Code(err),
				"error", err)
		}

		c.JSON(status, response.Error(status, ierr.DisplayMessage(err)).
			WithDetails(ierr.ReportableDetails(err)).
			WithRequestID(GetRequestID(c)))
	}
}
