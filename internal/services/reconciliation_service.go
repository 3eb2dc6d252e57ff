package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/metrics"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

// ReconcileOutcome is the result of propagating a verification into booking state
type ReconcileOutcome string

const (
	OutcomePaid           ReconcileOutcome = "paid"
	OutcomeFailed         ReconcileOutcome = "failed"
	OutcomeAlreadySettled ReconcileOutcome = "already_settled"
	// Gateway took the money but the booking could not be paid (expired or cancelled)
	OutcomeMismatch ReconcileOutcome = "mismatch"
)

// ReconcileResult describes what Reconcile did
type ReconcileResult struct {
	Outcome       ReconcileOutcome
	Reference     string
	BookingID     int64
	PaymentStatus models.PaymentStatus
	BookingStatus models.BookingStatus
}

// Successful reports whether the booking is paid for
func (r *ReconcileResult) Successful() bool {
	return r.Outcome == OutcomePaid || r.Outcome == OutcomeAlreadySettled
}

// PaymentVerifier checks a reference with the gateway
type PaymentVerifier interface {
	CheckPayment(ctx context.Context, reference string) Verification
}

// ReconciliationService applies verified payment outcomes to bookings
type ReconciliationService struct {
	payments PaymentStore
	verifier PaymentVerifier
	events   PaymentEventLog
	logger   *logrus.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(payments PaymentStore, verifier PaymentVerifier, events PaymentEventLog, logger *logrus.Logger) *ReconciliationService {
	return &ReconciliationService{
		payments: payments,
		verifier: verifier,
		events:   events,
		logger:   logger,
	}
}

// Reconcile verifies reference with the gateway and settles the result.
// On success the payment becomes success and its booking paid in one
// transaction; on failure the payment becomes failed and the booking is left
// pending for the expiry sweep. Unknown references return database.ErrPaymentNotFound.
func (s *ReconciliationService) Reconcile(ctx context.Context, reference string, source models.PaymentEventSource) (*ReconcileResult, error) {
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, database.ErrPaymentNotFound
	}

	result := &ReconcileResult{
		Reference:     reference,
		BookingID:     payment.BookingID,
		PaymentStatus: payment.Status,
		BookingStatus: payment.BookingStatus,
	}
	logger := s.logger.WithFields(logrus.Fields{
		"reference":  reference,
		"booking_id": payment.BookingID,
	})

	if payment.Status == models.PaymentStatusSuccess {
		result.Outcome = OutcomeAlreadySettled
		s.record(ctx, result, source, models.PaymentEventVerified, nil)
		return result, nil
	}

	verification := s.verifier.CheckPayment(ctx, reference)
	if verification.Verified {
		settlement, err := s.payments.SettleSuccess(ctx, reference, verification.Payload)
		switch {
		case errors.Is(err, models.ErrInvalidTransition):
			result.Outcome = OutcomeMismatch
			logger.WithError(err).Error("Verified payment could not be applied to its booking; manual refund required")
			s.record(ctx, result, source, models.PaymentEventMismatch, err)
			return result, nil
		case err != nil:
			return nil, fmt.Errorf("failed to settle payment: %w", err)
		}

		result.PaymentStatus = settlement.Payment.Status
		result.BookingStatus = settlement.Booking.Status
		if settlement.AlreadySettled {
			result.Outcome = OutcomeAlreadySettled
			s.record(ctx, result, source, models.PaymentEventVerified, nil)
			return result, nil
		}

		result.Outcome = OutcomePaid
		logger.Info("Payment verified and booking paid")
		s.record(ctx, result, source, models.PaymentEventBookingPaid, nil)
		return result, nil
	}

	failed, err := s.payments.MarkFailed(ctx, reference, verification.Payload)
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		// Settled concurrently by another verification
		result.Outcome = OutcomeAlreadySettled
		result.PaymentStatus = models.PaymentStatusSuccess
		s.record(ctx, result, source, models.PaymentEventVerified, nil)
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	result.Outcome = OutcomeFailed
	result.PaymentStatus = failed.Status
	logger.WithField("gateway_status", verification.GatewayStatus).Info("Payment verification failed")
	s.record(ctx, result, source, models.PaymentEventVerifyFailed, nil)
	return result, nil
}

// ReconcilePending re-verifies pending payments older than olderThan.
// Returns how many ended up paid.
func (s *ReconciliationService) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	paid := 0
	for _, payment := range stale {
		if ctx.Err() != nil {
			return paid, ctx.Err()
		}
		result, err := s.Reconcile(ctx, payment.Reference, models.PaymentSourceSystem)
		if err != nil {
			s.logger.WithError(err).WithField("reference", payment.Reference).Error("Failed to re-verify payment")
			continue
		}
		if result.Outcome == OutcomePaid {
			paid++
		}
	}

	if len(stale) > 0 {
		s.logger.WithFields(logrus.Fields{
			"checked": len(stale),
			"paid":    paid,
		}).Info("Re-verified stale pending payments")
	}
	return paid, nil
}

func (s *ReconciliationService) record(ctx context.Context, result *ReconcileResult, source models.PaymentEventSource, eventType models.PaymentEventType, cause error) {
	metrics.IncReconciliation(string(result.Outcome))

	event := models.NewPaymentEvent(eventType, source).
		SetReference(result.Reference).
		SetBooking(result.BookingID).
		SetPaymentStatus(result.PaymentStatus).
		SetDetail("outcome", string(result.Outcome)).
		SetDetail("booking_status", string(result.BookingStatus)).
		SetError(cause)
	if err := s.events.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("reference", result.Reference).Warn("Failed to record payment event")
	}
}
