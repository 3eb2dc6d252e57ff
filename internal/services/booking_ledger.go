package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/metrics"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

// amountTolerance absorbs client-side float rounding of the quoted total
const amountTolerance = 0.01

// BookingLedger creates bookings and guards their status changes
type BookingLedger struct {
	bookings BookingStore
	logger   *logrus.Logger
}

// NewBookingLedger creates a new booking ledger
func NewBookingLedger(bookings BookingStore, logger *logrus.Logger) *BookingLedger {
	return &BookingLedger{bookings: bookings, logger: logger}
}

// CreateBooking inserts a pending booking. The availability check and the
// insert happen in one transaction holding the room's row lock, and the
// client's total must match nights * price_per_night of the locked room.
func (l *BookingLedger) CreateBooking(ctx context.Context, req models.NewBooking) (*models.Booking, error) {
	if err := req.Stay.Validate(); err != nil {
		metrics.IncBookingFailure("invalid_stay")
		return nil, err
	}

	nights := req.Stay.Nights()
	booking := &models.Booking{
		UserID:          req.UserID,
		RoomID:          req.RoomID,
		CheckInDate:     req.Stay.CheckIn,
		CheckOutDate:    req.Stay.CheckOut,
		TotalNights:     nights,
		TotalAmount:     models.RoundMoney(req.TotalAmount),
		SpecialRequests: models.NewNullString(strings.TrimSpace(req.SpecialRequests)),
		Status:          models.BookingStatusPending,
	}

	err := l.bookings.CreateIfAvailable(ctx, booking, func(room *models.Room) error {
		expected := room.PriceFor(nights)
		if math.Abs(expected-req.TotalAmount) > amountTolerance {
			return fmt.Errorf("%w: expected %.2f for %d night(s), got %.2f", ErrAmountMismatch, expected, nights, req.TotalAmount)
		}
		booking.TotalAmount = expected
		return nil
	})
	if err != nil {
		metrics.IncBookingFailure(failureReason(err))
		return nil, err
	}

	metrics.IncBookingCreated()
	l.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    booking.UserID,
		"room_id":    booking.RoomID,
		"check_in":   req.Stay.CheckInString(),
		"nights":     nights,
	}).Info("Booking created")

	return booking, nil
}

// UpdateBookingStatus moves a booking along the transition table.
// Illegal moves return a *models.TransitionError.
func (l *BookingLedger) UpdateBookingStatus(ctx context.Context, id int64, next models.BookingStatus) (*models.Booking, error) {
	if _, err := models.ParseBookingStatus(string(next)); err != nil {
		return nil, err
	}

	booking, err := l.bookings.TransitionStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"status":     booking.Status,
	}).Info("Booking status updated")
	return booking, nil
}

// GetBooking returns a booking or database.ErrBookingNotFound
func (l *BookingLedger) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := l.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, database.ErrBookingNotFound
	}
	return booking, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, database.ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, database.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, models.ErrInvalidStay):
		return "invalid_stay"
	default:
		return "internal"
	}
}
