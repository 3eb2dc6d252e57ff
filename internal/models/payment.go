package models

import (
	"fmt"
	"time"
)

// PaymentStatus represents the status of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// failed -> success covers a verification that arrives after the attempt was written off
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusSuccess},
}

// CanTransitionTo checks the payment transition table
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when next is not reachable from s
func (s PaymentStatus) ValidateTransition(next PaymentStatus) error {
	if !s.CanTransitionTo(next) {
		return &TransitionError{Entity: "payment", From: string(s), To: string(next)}
	}
	return nil
}

// DefaultCurrency is used when a payment is created without one
const DefaultCurrency = "GHS"

// Payment is one collection attempt for a booking. Reference is generated
// server-side and is the idempotency key toward the gateway.
type Payment struct {
	ID              int64         `json:"id" db:"id"`
	BookingID       int64         `json:"booking_id" db:"booking_id"`
	Reference       string        `json:"reference" db:"reference"`
	Amount          float64       `json:"amount" db:"amount"`
	Currency        string        `json:"currency" db:"currency"`
	Status          PaymentStatus `json:"status" db:"status"`
	GatewayResponse JSONB         `json:"gateway_response,omitempty" db:"gateway_response"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// PaymentWithBooking is a payment joined with its owning booking
type PaymentWithBooking struct {
	Payment
	UserID        int64         `json:"user_id" db:"user_id"`
	RoomID        int64         `json:"room_id" db:"room_id"`
	BookingStatus BookingStatus `json:"booking_status" db:"booking_status"`
	GuestEmail    string        `json:"guest_email" db:"email"`
}

// Settlement is the result of applying a verified payment to its booking
type Settlement struct {
	Payment        *Payment
	Booking        *Booking
	AlreadySettled bool
}

// String is used in log fields
func (s *Settlement) String() string {
	if s == nil || s.Payment == nil || s.Booking == nil {
		return "settlement<nil>"
	}
	return fmt.Sprintf("payment %s=%s booking %d=%s", s.Payment.Reference, s.Payment.Status, s.Booking.ID, s.Booking.Status)
}
