package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

// PaymentEventRepository stores the payment audit trail
type PaymentEventRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentEventRepository creates a new payment event repository
func NewPaymentEventRepository(db DB, logger *logrus.Logger) *PaymentEventRepository {
	return &PaymentEventRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends a payment event
func (r *PaymentEventRepository) Log(ctx context.Context, event *models.PaymentEvent) error {
	if event == nil {
		return fmt.Errorf("payment event cannot be nil")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_events (
			payment_reference, booking_id, event_type, event_source, payment_status,
			details, error_message, ip_address, correlation_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		event.PaymentReference, event.BookingID, event.EventType, event.EventSource, event.PaymentStatus,
		event.Details, event.ErrorMessage, event.IPAddress, event.CorrelationID, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"event_type": event.EventType,
			"reference":  event.PaymentReference.String,
			"error":      err.Error(),
		}).Error("Failed to write payment event")
		return fmt.Errorf("failed to log payment event: %w", err)
	}
	return nil
}

// ListByReference returns the events for one payment, oldest first
func (r *PaymentEventRepository) ListByReference(ctx context.Context, reference string) ([]models.PaymentEvent, error) {
	events := []models.PaymentEvent{}
	query := `
		SELECT id, payment_reference, booking_id, event_type, event_source, payment_status,
			details, error_message, ip_address, correlation_id, created_at
		FROM payment_events
		WHERE payment_reference = $1
		ORDER BY created_at ASC, id ASC`

	if err := r.db.SelectContext(ctx, &events, query, reference); err != nil {
		return nil, fmt.Errorf("failed to list payment events: %w", err)
	}
	return events, nil
}
