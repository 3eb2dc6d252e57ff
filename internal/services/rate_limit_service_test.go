package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupRateLimitTest(t *testing.T, maxAttempts int) (*RateLimitService, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimitService(client, maxAttempts, 15*time.Minute, quietLogger()), s
}

func TestRateLimitService_LoginThrottle(t *testing.T) {
	service, mr := setupRateLimitTest(t, 3)
	ctx := context.Background()
	email := "Kofi@Example.com"

	t.Run("Under Limit", func(t *testing.T) {
		require.NoError(t, service.RecordFailedLogin(ctx, email))
		require.NoError(t, service.RecordFailedLogin(ctx, email))
		assert.NoError(t, service.CheckLogin(ctx, email))

		attempts, err := service.FailedAttempts(ctx, "kofi@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 15*time.Minute, mr.TTL("login_attempts:kofi@example.com"))
	})

	t.Run("Limit Reached", func(t *testing.T) {
		require.NoError(t, service.RecordFailedLogin(ctx, email))

		err := service.CheckLogin(ctx, email)
		require.Error(t, err)

		var rateLimitErr *RateLimitError
		require.True(t, errors.As(err, &rateLimitErr))
		assert.Equal(t, "login", rateLimitErr.Type)
		assert.Contains(t, rateLimitErr.Message, "Too many failed login attempts")
		assert.True(t, rateLimitErr.RetryAfter.After(time.Now()))
	})

	t.Run("Reset Clears Counter", func(t *testing.T) {
		require.NoError(t, service.ResetLogin(ctx, email))
		assert.NoError(t, service.CheckLogin(ctx, email))
		assert.False(t, mr.Exists("login_attempts:kofi@example.com"))
	})

	t.Run("Window Expires", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, service.RecordFailedLogin(ctx, email))
		}
		require.Error(t, service.CheckLogin(ctx, email))

		mr.FastForward(16 * time.Minute)
		assert.NoError(t, service.CheckLogin(ctx, email))
	})
}

func TestRateLimitService_FailsOpen(t *testing.T) {
	service, mr := setupRateLimitTest(t, 1)
	ctx := context.Background()

	require.NoError(t, service.RecordFailedLogin(ctx, "ama@example.com"))
	mr.Close()

	assert.NoError(t, service.CheckLogin(ctx, "ama@example.com"))
}

func TestRateLimitService_Disabled(t *testing.T) {
	service := NewRateLimitService(nil, 1, time.Minute, quietLogger())
	ctx := context.Background()

	assert.False(t, service.Enabled())
	assert.NoError(t, service.RecordFailedLogin(ctx, "ama@example.com"))
	assert.NoError(t, service.CheckLogin(ctx, "ama@example.com"))
	assert.NoError(t, service.ResetLogin(ctx, "ama@example.com"))
}
