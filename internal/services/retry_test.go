package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 10*time.Millisecond, policy.NextDelay(0))
	assert.Equal(t, 10*time.Millisecond, policy.NextDelay(1))
	assert.Equal(t, 20*time.Millisecond, policy.NextDelay(2))
	assert.Equal(t, 40*time.Millisecond, policy.NextDelay(3))
	assert.Equal(t, 200*time.Millisecond, policy.NextDelay(10))
}

func TestRetryPolicy_Do(t *testing.T) {
	transient := errors.New("transient")
	permanent := errors.New("permanent")
	isTransient := func(err error) bool { return errors.Is(err, transient) }
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}

	t.Run("Succeeds After Transient Errors", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), isTransient, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Stops On Permanent Error", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), isTransient, func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("Returns Last Error When Exhausted", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), nil, func(ctx context.Context) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("Honours Context", func(t *testing.T) {
		slow := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := slow.Do(ctx, nil, func(ctx context.Context) error { return transient })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
