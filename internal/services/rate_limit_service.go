package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const loginAttemptsKeyPrefix = "login_attempts:"

// RateLimitService throttles failed logins per email using Redis counters.
// With no Redis client configured every check passes.
type RateLimitService struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
	logger      *logrus.Logger
}

// NewRateLimitService creates a new rate limit service. client may be nil.
func NewRateLimitService(client *redis.Client, maxAttempts int, window time.Duration, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "login" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Enabled reports whether a Redis client is configured
func (s *RateLimitService) Enabled() bool {
	return s.client != nil
}

func loginKey(email string) string {
	return loginAttemptsKeyPrefix + NormalizeEmail(email)
}

// CheckLogin returns a *RateLimitError once an email has used up its failed attempts.
// Redis failures are logged and let the login through.
func (s *RateLimitService) CheckLogin(ctx context.Context, email string) error {
	if !s.Enabled() {
		return nil
	}

	key := loginKey(email)
	count, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Warn("Login throttle unavailable")
		return nil
	}
	if count < s.maxAttempts {
		return nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = s.window
	}
	retryAfter := time.Now().Add(ttl)
	return &RateLimitError{
		Message:    fmt.Sprintf("Too many failed login attempts. Please try again after %s", retryAfter.Format("15:04:05")),
		RetryAfter: retryAfter,
		Type:       "login",
	}
}

// RecordFailedLogin counts a failed attempt; the window starts at the first failure
func (s *RateLimitService) RecordFailedLogin(ctx context.Context, email string) error {
	if !s.Enabled() {
		return nil
	}

	key := loginKey(email)
	attempts, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	if attempts == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			return fmt.Errorf("failed to set login attempt window: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"attempts": attempts,
	}).Debug("Recorded failed login")
	return nil
}

// ResetLogin clears the counter after a successful login
func (s *RateLimitService) ResetLogin(ctx context.Context, email string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.client.Del(ctx, loginKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

// FailedAttempts returns the current counter for an email
func (s *RateLimitService) FailedAttempts(ctx context.Context, email string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	count, err := s.client.Get(ctx, loginKey(email)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}
