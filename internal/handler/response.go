package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"residency/internal/directory"
	"residency/internal/evaluation"
)

// envelope is the wire convention for every response:
// { success, data?, error? } with the HTTP status mirroring the outcome.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func failWith(c *gin.Context, status int, msg string) {
	c.JSON(status, envelope{Success: false, Error: msg})
}

// fail maps domain errors to the envelope. Anything unrecognized is a 500
// with a generic message, logged server-side.
func fail(c *gin.Context, err error) {
	var evalValidation *evaluation.ValidationError
	var dirValidation *directory.ValidationError
	var conflict *evaluation.ConflictError

	switch {
	case errors.As(err, &evalValidation),
		errors.As(err, &dirValidation),
		errors.As(err, &conflict),
		errors.Is(err, directory.ErrEmailTaken):
		failWith(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrBadCredentials):
		failWith(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, evaluation.ErrNotOwner),
		errors.Is(err, directory.ErrLastHOD):
		failWith(c, http.StatusForbidden, err.Error())
	case errors.Is(err, evaluation.ErrInternNotFound),
		errors.Is(err, evaluation.ErrAttemptNotFound),
		errors.Is(err, evaluation.ErrModuleUnknown),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, directory.ErrBatchNotFound):
		failWith(c, http.StatusNotFound, err.Error())
	default:
		log.Printf("unhandled error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		failWith(c, http.StatusInternalServerError, "server error")
	}
}
