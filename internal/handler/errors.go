package handler

import (
	"errors"
	"net/http"
	"strconv"

	"procuretrack/internal/middleware"
	"procuretrack/internal/service"
	"procuretrack/internal/workflow"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// retryAfterSeconds is advertised on CONTENTION responses.
const retryAfterSeconds = 1

var transitionStatus = map[workflow.Code]int{
	workflow.CodeInvalidTransition: http.StatusConflict,
	workflow.CodeUnauthorized:      http.StatusForbidden,
	workflow.CodeMissingRemarks:    http.StatusUnprocessableEntity,
	workflow.CodeSideEffectFailed:  http.StatusUnprocessableEntity,
	workflow.CodeContention:        http.StatusServiceUnavailable,
	workflow.CodeNotFound:          http.StatusNotFound,
}

// respondError maps service and workflow errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	if te, ok := workflow.AsTransitionError(err); ok {
		status, known := transitionStatus[te.Code]
		if !known {
			status = http.StatusInternalServerError
		}
		if te.Retryable() {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
		var details interface{}
		if len(te.Details) > 0 {
			details = te.Details
		}
		c.JSON(status, response.Fail(status, string(te.Code), te.Error(), details))
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	}
	c.JSON(status, response.Error(status, message))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, message))
}

// currentActor reads the identity set by the auth middleware. Routes without
// RequireRole never reach a handler that calls it.
func currentActor(c *gin.Context) (service.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
		return service.Actor{}, false
	}
	return actor, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id: must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
