package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"retail-order-service/errs"
)

// respondError translates the engine's error taxonomy into HTTP statuses.
// Clients get the kind and message, never a stack trace or raw SQL.
func respondError(c *gin.Context, err error) {
	kind := errs.KindOf(err)

	var status int
	switch kind {
	case errs.InvalidInput:
		status = http.StatusBadRequest
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.Conflict, errs.InsufficientStock:
		status = http.StatusConflict
	case errs.LockWaitTimeout:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Do not leak driver details on internal failures.
		message = "internal error"
	}

	c.JSON(status, gin.H{"error": message, "kind": kind.String()})
}
