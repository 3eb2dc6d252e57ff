package models

import (
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// STATUS ENUMS & TRANSITION TABLES
// ============================================================================

// ErrInvalidTransition is matched by every TransitionError
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected status change
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move %s from %q to %q", ErrInvalidTransition.Error(), e.Entity, e.From, e.To)
}

// Is lets errors.Is(err, ErrInvalidTransition) match
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Created, awaiting payment
	BookingStatusConfirmed BookingStatus = "confirmed" // Payment verified
	BookingStatusPaid      BookingStatus = "paid"      // Settled (terminal)
	BookingStatusCancelled BookingStatus = "cancelled" // Released (terminal)
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusPaid, BookingStatusCancelled},
}

// ParseBookingStatus validates a raw status string
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusPaid, BookingStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// IsActive reports whether the booking counts against room availability
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// IsTerminal reports whether no further transitions are allowed
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// CanTransitionTo checks the booking transition table
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when next is not reachable from s
func (s BookingStatus) ValidateTransition(next BookingStatus) error {
	if !s.CanTransitionTo(next) {
		return &TransitionError{Entity: "booking", From: string(s), To: string(next)}
	}
	return nil
}

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// Booking is one reservation attempt for a room over a stay range.
// Status is the only field mutated after creation.
type Booking struct {
	ID              int64         `json:"id" db:"id"`
	UserID          int64         `json:"user_id" db:"user_id"`
	RoomID          int64         `json:"room_id" db:"room_id"`
	CheckInDate     time.Time     `json:"check_in_date" db:"check_in_date"`
	CheckOutDate    time.Time     `json:"check_out_date" db:"check_out_date"`
	TotalNights     int           `json:"total_nights" db:"total_nights"`
	TotalAmount     float64       `json:"total_amount" db:"total_amount"`
	SpecialRequests NullString    `json:"special_requests,omitempty" db:"special_requests"`
	Status          BookingStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// Stay returns the booking's date range
func (b *Booking) Stay() StayRange {
	return StayRange{CheckIn: b.CheckInDate, CheckOut: b.CheckOutDate}
}

// BookingDetails joins a booking with its room and guest for display and export
type BookingDetails struct {
	Booking
	RoomName         string     `json:"room_name" db:"room_name"`
	PricePerNight    float64    `json:"price_per_night" db:"price_per_night"`
	GuestFirstName   string     `json:"guest_first_name" db:"first_name"`
	GuestLastName    string     `json:"guest_last_name" db:"last_name"`
	GuestEmail       string     `json:"guest_email" db:"email"`
	PaymentReference NullString `json:"payment_reference,omitempty" db:"payment_reference"`
	PaymentStatus    NullString `json:"payment_status,omitempty" db:"payment_status"`
}

// NewBooking is the input to the booking ledger
type NewBooking struct {
	UserID          int64
	RoomID          int64
	Stay            StayRange
	TotalAmount     float64
	SpecialRequests string
}

// BookingFilter narrows booking listings for staff views and exports
type BookingFilter struct {
	Status *BookingStatus
	From   *time.Time
	To     *time.Time
	Limit  int
}
