package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"geoindex/internal/geo"
	"geoindex/internal/repository"
)

// respondError maps service and store errors onto HTTP statuses. params
// renames validation fields to the request parameter that carried them.
//
// Go Learning Note — errors.As vs errors.Is:
// errors.Is matches a sentinel value anywhere in the wrap chain. errors.As
// finds the first error of a given type and assigns it, which is how the
// handler reaches the Field of a *geo.ValidationError.
func respondError(c *gin.Context, err error, params map[string]string) {
	var ve *geo.ValidationError
	switch {
	case errors.As(err, &ve):
		field := ve.Field
		if p, ok := params[field]; ok {
			field = p
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": field})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badParam(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "field": field})
}
