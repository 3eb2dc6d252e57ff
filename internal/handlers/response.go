package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
	"github.com/greengrey/guesthouse-backend/pkg/validator"
)

// respondBindError answers 400 with per-field messages when the binding engine produced them
func respondBindError(c *gin.Context, err error) {
	if fields := validator.FieldErrors(err); len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid request data",
			"fields": fields,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
}

// statusForError maps domain errors to HTTP status codes. Unknown errors are 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidStay),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrInvalidGuest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, database.ErrRoomNotFound),
		errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrRoomUnavailable),
		errors.Is(err, database.ErrEmailTaken),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, services.ErrPaymentNotPending):
		return http.StatusConflict
	case errors.Is(err, services.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrGatewayUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// parseID reads a positive int64 path parameter
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
