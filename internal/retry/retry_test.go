package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmjagdish/schedula/internal/retry"
)

var errTransient = errors.New("transient")

func fastConfig() retry.Config {
	return retry.Config{
		MaxAttempts:   4,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
		Retryable:     func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := retry.Do(context.Background(), fastConfig(), func(int) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	terminal := errors.New("slot full")
	calls := 0

	attempts, err := retry.Do(context.Background(), fastConfig(), func(int) error {
		calls++
		return terminal
	})

	assert.Same(t, terminal, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	var seen []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		seen = append(seen, attempt)
	}

	attempts, err := retry.Do(context.Background(), cfg, func(int) error {
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Do(ctx, fastConfig(), func(int) error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
