package handler

import (
	ierr "pluto/internal/errors"
	"pluto/internal/middleware"
	"pluto/pkg/response"

	"github.com/gin-gonic/gin"
)

// ok writes a success envelope tagged with the request's transaction id.
// Errors go through c.Error and are rendered by middleware.ErrorHandler.
func ok(c *gin.Context, status int, res response.Response) {
	c.JSON(status, res.WithRequestID(middleware.GetRequestID(c)))
}

func invalidPayload(err error) error {
	return ierr.WithError(err).
		WithHint("please submit a valid json body").
		Mark(ierr.ErrValidation)
}
