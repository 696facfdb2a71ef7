package handlers

import (
	"errors"
	"net/http"

	"messenger-be/internal/apperr"

	"github.com/gin-gonic/gin"
)

// respondError maps the error taxonomy onto HTTP. notFound is the status used
// for a missing entity: 400 when the request referenced it, 404 on reads.
func respondError(c *gin.Context, err error, notFound int) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, apperr.ErrAuthentication), errors.Is(err, apperr.ErrInvalidCreds):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized", "error": err.Error()})
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid data", "error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(notFound, gin.H{"message": "not found", "error": err.Error()})
	case errors.Is(err, apperr.ErrAuthorization):
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}
