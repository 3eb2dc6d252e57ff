package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
)

const (
	JobPurgeExpiredSessions    = "purge_expired_sessions"
	JobReverifyPendingPayments = "reverify_pending_payments"
)

// SessionPurger deletes expired login sessions
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PendingReconciler re-verifies stale pending payments
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	sessions   SessionPurger
	reconciler PendingReconciler
	config     config.BookingConfig
	logger     *logrus.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewCronService creates a new CronService
func NewCronService(sessions SessionPurger, reconciler PendingReconciler, cfg config.BookingConfig, logger *logrus.Logger) *CronService {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &CronService{
		cron:       c,
		sessions:   sessions,
		reconciler: reconciler,
		config:     cfg,
		logger:     logger,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service")

	// "0 0 3 * * *" = At 3:00 AM every day
	if err := s.schedule(JobPurgeExpiredSessions, "0 0 3 * * *", s.purgeExpiredSessionsJob); err != nil {
		return err
	}

	if err := s.schedule(JobReverifyPendingPayments, s.config.ReverifySchedule, s.reverifyPendingPaymentsJob); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

func (s *CronService) schedule(name, spec string, job func()) error {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", name, err)
	}

	s.mu.Lock()
	s.entries[name] = id
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"schedule": spec,
	}).Info("Scheduled cron job")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// purgeExpiredSessionsJob deletes login sessions past their expiry
func (s *CronService) purgeExpiredSessionsJob() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("job", JobPurgeExpiredSessions).Error("Cron job failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job":         JobPurgeExpiredSessions,
		"removed":     removed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Cron job finished")
}

// reverifyPendingPaymentsJob asks the gateway about payments left pending
func (s *CronService) reverifyPendingPaymentsJob() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	paid, err := s.reconciler.ReconcilePending(ctx, s.config.ReverifyAfter, s.config.SweepBatchSize)
	if err != nil {
		s.logger.WithError(err).WithField("job", JobReverifyPendingPayments).Error("Cron job failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job":         JobReverifyPendingPayments,
		"paid":        paid,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Cron job finished")
}

// RunJobNow runs a job immediately (admin trigger)
func (s *CronService) RunJobNow(name string) error {
	switch name {
	case JobPurgeExpiredSessions:
		s.purgeExpiredSessionsJob()
	case JobReverifyPendingPayments:
		s.reverifyPendingPaymentsJob()
	default:
		return fmt.Errorf("unknown cron job %q", name)
	}
	return nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(s.entries))
	for name, id := range s.entries {
		entry := s.cron.Entry(id)
		jobs = append(jobs, map[string]interface{}{
			"name":     name,
			"id":       id,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(s.entries) > 0,
		"job_count": len(s.entries),
		"jobs":      jobs,
	}
}
