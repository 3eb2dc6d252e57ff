package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

// ErrPaymentNotPending is returned when a checkout is requested for a settled or failed payment
var ErrPaymentNotPending = errors.New("payment is no longer pending")

// CreateBookingRequest is one booking form submission
type CreateBookingRequest struct {
	Guest           GuestDetails
	RoomID          int64
	Stay            models.StayRange
	TotalAmount     float64
	SpecialRequests string
}

// BookingConfirmation is what the guest needs to proceed to payment
type BookingConfirmation struct {
	Booking *models.Booking
	Payment *models.Payment
	Guest   *models.User
}

// PaymentSession is an opened checkout at the gateway
type PaymentSession struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// BookingWorkflowService handles the Booking → Payment → Reconcile flow
type BookingWorkflowService struct {
	identity  *IdentityService
	ledger    *BookingLedger
	bridge    *PaymentBridge
	reconcile *ReconciliationService
	bookings  BookingStore
	payments  PaymentStore
	events    PaymentEventLog
	config    *config.PaymentConfig
	logger    *logrus.Logger

	// Watchers outlive the request that started them
	baseCtx  context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	watchers map[string]*CollectionHandle
	wg       sync.WaitGroup
}

// NewBookingWorkflowService creates a new workflow service
func NewBookingWorkflowService(
	identity *IdentityService,
	ledger *BookingLedger,
	bridge *PaymentBridge,
	reconcile *ReconciliationService,
	bookings BookingStore,
	payments PaymentStore,
	events PaymentEventLog,
	cfg *config.PaymentConfig,
	logger *logrus.Logger,
) *BookingWorkflowService {
	baseCtx, stop := context.WithCancel(context.Background())
	return &BookingWorkflowService{
		identity:  identity,
		ledger:    ledger,
		bridge:    bridge,
		reconcile: reconcile,
		bookings:  bookings,
		payments:  payments,
		events:    events,
		config:    cfg,
		logger:    logger,
		baseCtx:   baseCtx,
		stop:      stop,
		watchers:  make(map[string]*CollectionHandle),
	}
}

// ============================================================================
// CREATE BOOKING
// ============================================================================

// CreateBooking resolves the guest, writes a pending booking and issues its
// pending payment. If the payment cannot be issued the booking is cancelled
// so it does not hold the room.
func (s *BookingWorkflowService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingConfirmation, error) {
	// 1. Reject bad dates before touching the database
	if err := req.Stay.Validate(); err != nil {
		return nil, err
	}

	// 2. Resolve the guest
	guest, err := s.identity.ResolveOrCreateGuest(ctx, req.Guest)
	if err != nil {
		return nil, err
	}

	// 3. Write the booking (atomic availability check)
	booking, err := s.ledger.CreateBooking(ctx, models.NewBooking{
		UserID:          guest.ID,
		RoomID:          req.RoomID,
		Stay:            req.Stay,
		TotalAmount:     req.TotalAmount,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		return nil, err
	}

	// 4. Issue the payment
	payment, err := s.bridge.IssuePayment(ctx, booking.ID, booking.TotalAmount, s.config.Currency)
	if err != nil {
		s.compensate(booking, err)
		return nil, fmt.Errorf("failed to issue payment: %w", err)
	}

	s.logEvent(ctx, models.NewPaymentEvent(models.PaymentEventCreated, models.PaymentSourceBackend).
		SetReference(payment.Reference).
		SetBooking(booking.ID).
		SetPaymentStatus(payment.Status).
		SetDetail("amount", payment.Amount).
		SetDetail("currency", payment.Currency))

	return &BookingConfirmation{Booking: booking, Payment: payment, Guest: guest}, nil
}

func (s *BookingWorkflowService) compensate(booking *models.Booking, cause error) {
	// The request context may already be gone
	ctx, cancel := context.WithTimeout(s.baseCtx, s.config.Timeout)
	defer cancel()

	logger := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"cause":      cause.Error(),
	})
	if _, err := s.bookings.TransitionStatus(ctx, booking.ID, models.BookingStatusCancelled); err != nil {
		logger.WithError(err).Error("Failed to cancel booking after payment issue failure")
		return
	}
	logger.Warn("Booking cancelled because its payment could not be issued")
}

// ============================================================================
// PAYMENT COLLECTION
// ============================================================================

// InitializePayment opens a checkout for a pending payment and starts a
// watcher that applies the outcome when the guest finishes or gives up.
func (s *BookingWorkflowService) InitializePayment(ctx context.Context, reference, callbackURL string) (*PaymentSession, error) {
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, database.ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusPending || payment.BookingStatus != models.BookingStatusPending {
		return nil, ErrPaymentNotPending
	}

	handle, err := s.bridge.CollectPayment(ctx, CollectionRequest{
		Email:       payment.GuestEmail,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Reference:   payment.Reference,
		CallbackURL: callbackURL,
		Metadata: map[string]interface{}{
			"booking_id": payment.BookingID,
			"room_id":    payment.RoomID,
		},
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, models.NewPaymentEvent(models.PaymentEventInitialized, models.PaymentSourceBackend).
		SetReference(reference).
		SetBooking(payment.BookingID).
		SetPaymentStatus(payment.Status))

	s.watch(handle)

	return &PaymentSession{
		Reference:        handle.Reference,
		AuthorizationURL: handle.AuthorizationURL,
		AccessCode:       handle.AccessCode,
	}, nil
}

// watch starts a goroutine awaiting the handle. A newer checkout for the same
// reference replaces the older watcher.
func (s *BookingWorkflowService) watch(handle *CollectionHandle) {
	s.mu.Lock()
	if previous, ok := s.watchers[handle.Reference]; ok {
		previous.detach()
	}
	s.watchers[handle.Reference] = handle
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(handle)

		ctx, cancel := context.WithTimeout(s.baseCtx, s.config.CollectionTimeout)
		defer cancel()

		result := handle.Await(ctx)
		if handle.isDetached() || s.baseCtx.Err() != nil {
			return
		}
		s.applyCollection(handle.Reference, result)
	}()
}

func (s *BookingWorkflowService) forget(handle *CollectionHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[handle.Reference] == handle {
		delete(s.watchers, handle.Reference)
	}
}

func (s *BookingWorkflowService) applyCollection(reference string, result CollectionResult) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.config.Timeout)
	defer cancel()

	logger := s.logger.WithFields(logrus.Fields{
		"reference": reference,
		"outcome":   result.Outcome,
	})

	switch result.Outcome {
	case CollectionSucceeded:
		if _, err := s.reconcile.Reconcile(ctx, reference, models.PaymentSourceAPI); err != nil {
			logger.WithError(err).Error("Failed to reconcile collected payment")
		}
	case CollectionCancelled:
		if err := s.failPayment(ctx, reference, models.PaymentSourceSystem, result.Err); err != nil {
			logger.WithError(err).Warn("Failed to fail cancelled payment")
		}
	case CollectionTransportError:
		// Left pending; the cron re-verify or the expiry sweep resolves it
		logger.WithError(result.Err).Warn("Gateway unreachable while awaiting payment")
	}
}

// CancelPayment marks a payment failed after the guest abandons checkout.
// The booking stays pending until the expiry sweep releases it.
func (s *BookingWorkflowService) CancelPayment(ctx context.Context, reference string) error {
	s.mu.Lock()
	if handle, ok := s.watchers[reference]; ok {
		handle.detach()
	}
	s.mu.Unlock()

	return s.failPayment(ctx, reference, models.PaymentSourceUser, nil)
}

func (s *BookingWorkflowService) failPayment(ctx context.Context, reference string, source models.PaymentEventSource, cause error) error {
	payment, err := s.payments.MarkFailed(ctx, reference, nil)
	if err != nil {
		return err
	}
	s.logEvent(ctx, models.NewPaymentEvent(models.PaymentEventCancelled, source).
		SetReference(reference).
		SetBooking(payment.BookingID).
		SetPaymentStatus(payment.Status).
		SetError(cause))
	return nil
}

// ============================================================================
// CANCEL BOOKING
// ============================================================================

// CancelBooking cancels a booking and fails its pending payments.
// Only the owner or staff may cancel.
func (s *BookingWorkflowService) CancelBooking(ctx context.Context, bookingID int64, actor *models.User) (*models.Booking, error) {
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor == nil || (booking.UserID != actor.ID && !actor.IsStaff()) {
		return nil, ErrForbidden
	}

	cancelled, refs, err := s.bookings.Cancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, ref := range refs {
		if handle, ok := s.watchers[ref]; ok {
			handle.detach()
		}
	}
	s.mu.Unlock()

	for _, ref := range refs {
		s.logEvent(ctx, models.NewPaymentEvent(models.PaymentEventBookingCancelled, models.PaymentSourceUser).
			SetReference(ref).
			SetBooking(bookingID).
			SetPaymentStatus(models.PaymentStatusFailed).
			SetDetail("actor_id", actor.ID))
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"user_id":    actor.ID,
	}).Info("Booking cancelled")
	return cancelled, nil
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// ActiveWatchers returns how many checkouts are being awaited
func (s *BookingWorkflowService) ActiveWatchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Shutdown stops all watchers and waits for them to exit or ctx to end.
// Payments still pending are picked up by the cron re-verify after restart.
func (s *BookingWorkflowService) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BookingWorkflowService) logEvent(ctx context.Context, event *models.PaymentEvent) {
	if err := s.events.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to record payment event")
	}
}
