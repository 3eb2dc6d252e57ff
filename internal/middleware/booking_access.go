package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

// BookingContextKey holds the *models.BookingDetails loaded by RequireBookingAccess
const BookingContextKey = "booking"

// BookingReader loads one booking with its room and guest
type BookingReader interface {
	GetDetails(ctx context.Context, id int64) (*models.BookingDetails, error)
}

// RequireBookingAccess loads the booking named by :id and lets through only
// its owner or staff. Must be used after RequireAuth.
func RequireBookingAccess(bookings BookingReader, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found",
			})
			return
		}

		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
			return
		}

		booking, err := bookings.GetDetails(c.Request.Context(), id)
		if err != nil {
			logger.WithError(err).WithField("booking_id", id).Error("Failed to load booking for access check")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load booking"})
			return
		}

		// Strangers get the same answer as a missing booking
		if booking == nil || (booking.UserID != userCtx.UserID && !userCtx.Actor().IsStaff()) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
			return
		}

		c.Set(BookingContextKey, booking)
		c.Next()
	}
}

// GetBooking returns the booking stored by RequireBookingAccess
func GetBooking(c *gin.Context) (*models.BookingDetails, bool) {
	value, exists := c.Get(BookingContextKey)
	if !exists {
		return nil, false
	}
	booking, ok := value.(*models.BookingDetails)
	return booking, ok
}
