package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/backendkit/errors"
)

// DataResponse is the success envelope.
type DataResponse struct {
	Data any `json:"data"`
}

func respondError(c *gin.Context, err error) {
	appErr := errors.From(err)
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, DataResponse{Data: data})
}

func badRequest(c *gin.Context, field string, err error) {
	respondError(c, errors.InvalidInput(field, err.Error()).WithCause(err))
}
