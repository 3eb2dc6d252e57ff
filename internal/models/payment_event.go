package models

import (
	"time"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventCreated          PaymentEventType = "payment_created"
	PaymentEventInitialized      PaymentEventType = "payment_initialized"
	PaymentEventWebhookReceived  PaymentEventType = "webhook_received"
	PaymentEventVerified         PaymentEventType = "payment_verified"
	PaymentEventVerifyFailed     PaymentEventType = "verification_failed"
	PaymentEventCancelled        PaymentEventType = "payment_cancelled"
	PaymentEventBookingPaid      PaymentEventType = "booking_paid"
	PaymentEventBookingExpired   PaymentEventType = "booking_expired"
	PaymentEventBookingCancelled PaymentEventType = "booking_cancelled"
	// Gateway says paid but the booking can no longer be settled; needs a manual refund
	PaymentEventMismatch PaymentEventType = "reconciliation_mismatch"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend PaymentEventSource = "backend"
	PaymentSourceWebhook PaymentEventSource = "paystack_webhook"
	PaymentSourceAPI     PaymentEventSource = "paystack_api"
	PaymentSourceUser    PaymentEventSource = "user"
	PaymentSourceSystem  PaymentEventSource = "system"
)

// PaymentEvent is an append-only audit entry for the payment lifecycle
type PaymentEvent struct {
	ID               int64              `json:"id" db:"id"`
	PaymentReference NullString         `json:"payment_reference,omitempty" db:"payment_reference"`
	BookingID        *int64             `json:"booking_id,omitempty" db:"booking_id"`
	EventType        PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource      PaymentEventSource `json:"event_source" db:"event_source"`
	PaymentStatus    NullString         `json:"payment_status,omitempty" db:"payment_status"`
	Details          JSONB              `json:"details,omitempty" db:"details"`
	ErrorMessage     NullString         `json:"error_message,omitempty" db:"error_message"`
	IPAddress        NullString         `json:"ip_address,omitempty" db:"ip_address"`
	CorrelationID    NullString         `json:"correlation_id,omitempty" db:"correlation_id"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
}

// NewPaymentEvent creates a new payment event with required fields
func NewPaymentEvent(eventType PaymentEventType, source PaymentEventSource) *PaymentEvent {
	return &PaymentEvent{
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetReference sets the payment reference
func (e *PaymentEvent) SetReference(ref string) *PaymentEvent {
	e.PaymentReference = NewNullString(ref)
	return e
}

// SetBooking sets the booking ID
func (e *PaymentEvent) SetBooking(bookingID int64) *PaymentEvent {
	e.BookingID = &bookingID
	return e
}

// SetPaymentStatus records the payment status at the time of the event
func (e *PaymentEvent) SetPaymentStatus(status PaymentStatus) *PaymentEvent {
	e.PaymentStatus = NewNullString(string(status))
	return e
}

// SetDetail adds one key to the details payload
func (e *PaymentEvent) SetDetail(key string, value interface{}) *PaymentEvent {
	if e.Details == nil {
		e.Details = JSONB{}
	}
	e.Details[key] = value
	return e
}

// SetError sets error information
func (e *PaymentEvent) SetError(err error) *PaymentEvent {
	if err != nil {
		e.ErrorMessage = NewNullString(err.Error())
	}
	return e
}

// SetMetadata sets request metadata
func (e *PaymentEvent) SetMetadata(ip, correlationID string) *PaymentEvent {
	e.IPAddress = NewNullString(ip)
	e.CorrelationID = NewNullString(correlationID)
	return e
}
