package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/kanrigate/internal/auth"
	"github.com/example/kanrigate/internal/k8s"
)

type metaData struct {
	Status   int     `json:"status"`
	Message  string  `json:"message"`
	ExecTime float64 `json:"exec_time"`
}

// envelope wraps every JSON response.
type envelope struct {
	MetaData metaData `json:"meta_data"`
	Data     any      `json:"data"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{
		MetaData: metaData{Status: status, Message: message, ExecTime: auth.ExecTime(c)},
		Data:     data,
	})
}

func ok(c *gin.Context, data any) {
	respond(c, http.StatusOK, "OK", data)
}

// fail answers with the status matching err and stores err for the request
// logger.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	respond(c, statusFor(err), err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, k8s.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, k8s.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, k8s.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, k8s.ErrMalformedCredential), errors.Is(err, k8s.ErrEncoding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, k8s.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
