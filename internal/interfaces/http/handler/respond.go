// Package handler implements the HTTP endpoints over the scoped data-access
// layer. Each request builds one unit of work from its access context; the
// handler commits it at most once.
package handler

import (
	"errors"
	"net/http"

	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors onto HTTP statuses. Out-of-scope data is
// reported as not found, exactly like data that does not exist.
func respondError(c *gin.Context, err error) {
	var ve *shared.ValidationError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, shared.ErrIsolationViolation):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, shared.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "the record was modified by another request"})
	case errors.Is(err, shared.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": ve.Details})
	case errors.Is(err, shared.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed"})
	case errors.Is(err, shared.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
