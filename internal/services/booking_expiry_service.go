package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/metrics"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

// ExpiryStore lists and expires abandoned pending bookings
type ExpiryStore interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	ExpirePending(ctx context.Context, id int64, cutoff time.Time) (bool, []string, error)
}

// BookingExpiryService releases rooms held by pending bookings past their TTL
type BookingExpiryService struct {
	bookings ExpiryStore
	events   PaymentEventLog
	config   config.BookingConfig
	logger   *logrus.Logger

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewBookingExpiryService creates a new booking expiry service
func NewBookingExpiryService(bookings ExpiryStore, events PaymentEventLog, cfg config.BookingConfig, logger *logrus.Logger) *BookingExpiryService {
	return &BookingExpiryService{
		bookings: bookings,
		events:   events,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep
func (s *BookingExpiryService) Start() {
	s.logger.WithFields(logrus.Fields{
		"interval": s.config.SweepInterval.String(),
		"ttl":      s.config.PendingTTL.String(),
	}).Info("Starting booking expiry service")
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Stop stops the background sweep and waits for the current pass to finish
func (s *BookingExpiryService) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping booking expiry service")
		close(s.stopCh)
	})
	<-s.done
}

func (s *BookingExpiryService) run() {
	defer close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	// Run immediately on start
	s.sweep(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			s.logger.Info("Booking expiry service stopped")
			return
		}
	}
}

func (s *BookingExpiryService) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Error("Booking expiry sweep failed")
	}
}

// RunOnce expires one batch of stale pending bookings and returns how many
// were cancelled. Bookings that moved on since listing are skipped.
func (s *BookingExpiryService) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.PendingTTL)

	stale, err := s.bookings.ListStalePending(ctx, cutoff, s.config.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	s.logger.WithField("count", len(stale)).Info("Processing stale pending bookings")

	expired := 0
	for _, booking := range stale {
		if ctx.Err() != nil {
			break
		}

		ok, refs, err := s.bookings.ExpirePending(ctx, booking.ID, cutoff)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire booking")
			continue
		}
		if !ok {
			continue
		}
		expired++

		event := models.NewPaymentEvent(models.PaymentEventBookingExpired, models.PaymentSourceSystem).
			SetBooking(booking.ID).
			SetDetail("failed_payments", refs)
		if len(refs) > 0 {
			event.SetReference(refs[0]).SetPaymentStatus(models.PaymentStatusFailed)
		}
		if err := s.events.Log(ctx, event); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to record expiry event")
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"room_id":    booking.RoomID,
		}).Info("Pending booking expired and room released")
	}

	metrics.AddBookingsExpired(expired)
	return expired, nil
}
