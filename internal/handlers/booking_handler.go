package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/middleware"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
)

// BookingWorkflow creates and cancels bookings
type BookingWorkflow interface {
	CreateBooking(ctx context.Context, req services.CreateBookingRequest) (*services.BookingConfirmation, error)
	CancelBooking(ctx context.Context, bookingID int64, actor *models.User) (*models.Booking, error)
}

// UserBookings lists a guest's own bookings
type UserBookings interface {
	ListByUser(ctx context.Context, userID int64) ([]models.BookingDetails, error)
}

// BookingHandler handles the booking form and the guest's booking views
type BookingHandler struct {
	workflow BookingWorkflow
	bookings UserBookings
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(workflow BookingWorkflow, bookings UserBookings, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		workflow: workflow,
		bookings: bookings,
		logger:   logger,
	}
}

// CreateBookingRequest is the booking form body
type CreateBookingRequest struct {
	FirstName       string  `json:"firstName" binding:"required,max=100"`
	LastName        string  `json:"lastName" binding:"required,max=100"`
	Email           string  `json:"email" binding:"required,email"`
	Phone           string  `json:"phone" binding:"required,min=10,max=32,phone"`
	CheckIn         string  `json:"checkIn" binding:"required,dateonly"`
	CheckOut        string  `json:"checkOut" binding:"required,dateonly"`
	RoomID          int64   `json:"roomId" binding:"required,gt=0"`
	TotalAmount     float64 `json:"totalAmount" binding:"required,gt=0"`
	SpecialRequests string  `json:"specialRequests" binding:"max=1000"`
}

// BookingSummary is returned after a successful booking
type BookingSummary struct {
	ID        int64   `json:"id"`
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Email     string  `json:"email"`
}

// ============================================================================
// BOOKING FORM
// ============================================================================

// CreateBooking handles POST /api/booking/create
// @Summary Create a pending booking and its payment
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body CreateBookingRequest true "Booking form"
// @Success 200 {object} map[string]interface{} "Booking created"
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]interface{} "Room not available"
// @Router /booking/create [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	stay, err := models.ParseStayRange(req.CheckIn, req.CheckOut)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"room_id":   req.RoomID,
		"check_in":  req.CheckIn,
		"check_out": req.CheckOut,
	})
	if userCtx, ok := middleware.GetUserContext(c); ok {
		logger = logger.WithField("user_id", userCtx.UserID)
	}

	confirmation, err := h.workflow.CreateBooking(c.Request.Context(), services.CreateBookingRequest{
		Guest: services.GuestDetails{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		},
		RoomID:          req.RoomID,
		Stay:            stay,
		TotalAmount:     req.TotalAmount,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			logger.WithError(err).Error("Failed to create booking")
			c.JSON(status, gin.H{"error": "Failed to create booking"})
			return
		}
		logger.WithError(err).Info("Booking rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	logger.WithFields(logrus.Fields{
		"booking_id": confirmation.Booking.ID,
		"reference":  confirmation.Payment.Reference,
	}).Info("Booking created")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": BookingSummary{
			ID:        confirmation.Booking.ID,
			Reference: confirmation.Payment.Reference,
			Amount:    confirmation.Payment.Amount,
			Email:     confirmation.Guest.Email,
		},
	})
}

// ============================================================================
// GUEST VIEWS
// ============================================================================

// ListMyBookings handles GET /api/bookings/mine
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	bookings, err := h.bookings.ListByUser(c.Request.Context(), userCtx.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to list bookings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load bookings"})
		return
	}
	if bookings == nil {
		bookings = []models.BookingDetails{}
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetBooking handles GET /api/bookings/:id (behind RequireBookingAccess)
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, ok := middleware.GetBooking(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// CancelBooking handles POST /api/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	booking, err := h.workflow.CancelBooking(c.Request.Context(), id, userCtx.Actor())
	if err != nil {
		switch {
		case errors.Is(err, database.ErrBookingNotFound), errors.Is(err, services.ErrForbidden):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, models.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "Booking can no longer be cancelled"})
		default:
			h.logger.WithError(err).WithField("booking_id", id).Error("Failed to cancel booking")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel booking"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": booking,
	})
}
