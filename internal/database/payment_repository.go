package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/greengrey/guesthouse-backend/internal/models"
)

const paymentColumns = `id, booking_id, reference, amount, currency, status,
	gateway_response, created_at, updated_at`

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a pending payment. A reference collision returns
// ErrDuplicateReference so the caller can retry with a fresh reference.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.Currency == "" {
		payment.Currency = models.DefaultCurrency
	}

	err := r.db.GetContext(ctx, payment, `
		INSERT INTO payments (booking_id, reference, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+paymentColumns,
		payment.BookingID, payment.Reference, payment.Amount, payment.Currency, models.PaymentStatusPending,
	)
	switch {
	case isUniqueViolation(err, "payments_reference_key"):
		return ErrDuplicateReference
	case isUniqueViolation(err, "payments_one_active_per_booking"):
		return ErrActivePayment
	case err != nil:
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByReference retrieves a payment and its booking. Returns nil, nil when absent.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.PaymentWithBooking, error) {
	var payment models.PaymentWithBooking
	query := `
		SELECT p.id, p.booking_id, p.reference, p.amount, p.currency, p.status,
			p.gateway_response, p.created_at, p.updated_at,
			b.user_id, b.room_id, b.status AS booking_status, u.email
		FROM payments p
		JOIN bookings b ON p.booking_id = b.id
		JOIN users u ON b.user_id = u.id
		WHERE p.reference = $1`

	err := r.db.GetContext(ctx, &payment, query, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by reference: %w", err)
	}
	return &payment, nil
}

// ListStalePending returns pending payments created before cutoff, oldest first
func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &payments, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending payments: %w", err)
	}
	return payments, nil
}

// MarkFailed moves a payment to failed. Already-failed payments are returned
// unchanged; a successful payment is never downgraded (*models.TransitionError).
func (r *PaymentRepository) MarkFailed(ctx context.Context, reference string, gatewayResponse models.JSONB) (*models.Payment, error) {
	var payment *models.Payment
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockPayment(ctx, tx, reference)
		if err != nil {
			return err
		}
		if current.Status == models.PaymentStatusFailed {
			payment = current
			return nil
		}
		payment, err = setPaymentStatus(ctx, tx, current, models.PaymentStatusFailed, gatewayResponse)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// SettleSuccess applies a verified payment in one transaction: the payment
// becomes success and its booking goes pending -> confirmed -> paid.
// Calling it again for a settled payment is a no-op with AlreadySettled set.
// If the booking can no longer be paid (e.g. cancelled by expiry) nothing is
// written and a *models.TransitionError is returned.
func (r *PaymentRepository) SettleSuccess(ctx context.Context, reference string, gatewayResponse models.JSONB) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		payment, err := lockPayment(ctx, tx, reference)
		if err != nil {
			return err
		}
		booking, err := lockBooking(ctx, tx, payment.BookingID)
		if err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusSuccess && booking.Status == models.BookingStatusPaid {
			settlement.Payment, settlement.Booking, settlement.AlreadySettled = payment, booking, true
			return nil
		}

		if err := payment.Status.ValidateTransition(models.PaymentStatusSuccess); err != nil {
			return err
		}
		if booking.Status == models.BookingStatusPending {
			if booking, err = setBookingStatus(ctx, tx, booking, models.BookingStatusConfirmed); err != nil {
				return err
			}
		}
		if booking, err = setBookingStatus(ctx, tx, booking, models.BookingStatusPaid); err != nil {
			return err
		}
		if payment, err = setPaymentStatus(ctx, tx, payment, models.PaymentStatusSuccess, gatewayResponse); err != nil {
			return err
		}

		settlement.Payment, settlement.Booking = payment, booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func lockPayment(ctx context.Context, tx *sqlx.Tx, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1 FOR UPDATE`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return &payment, nil
}

func setPaymentStatus(ctx context.Context, tx *sqlx.Tx, current *models.Payment, next models.PaymentStatus, gatewayResponse models.JSONB) (*models.Payment, error) {
	if err := current.Status.ValidateTransition(next); err != nil {
		return nil, err
	}

	var updated models.Payment
	err := tx.GetContext(ctx, &updated, `
		UPDATE payments
		SET status = $2, gateway_response = COALESCE($3, gateway_response), updated_at = NOW()
		WHERE id = $1
		RETURNING `+paymentColumns,
		current.ID, next, gatewayResponse,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return &updated, nil
}
