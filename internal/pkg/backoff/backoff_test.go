// Copyright 2026 Peter Edge
//
// All rights reserved.

package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errRetryable = errors.New("busy")

func TestRetrySucceedsAfterRetryableErrors(t *testing.T) {
	t.Parallel()
	var attempts []int
	result, err := Retry(
		context.Background(),
		Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(ctx context.Context, attempt int) (string, bool, error) {
			attempts = append(attempts, attempt)
			if attempt < 2 {
				return "", true, errRetryable
			}
			return "ok", false, nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, []int{0, 1, 2}, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()
	errFatal := errors.New("fatal")
	calls := 0
	_, err := Retry(
		context.Background(),
		Policy{MaxAttempts: 5, InitialDelay: time.Millisecond},
		func(ctx context.Context, attempt int) (int, bool, error) {
			calls++
			return 0, false, errFatal
		},
	)
	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Retry(
		context.Background(),
		Policy{MaxAttempts: 3},
		func(ctx context.Context, attempt int) (int, bool, error) {
			calls++
			return 0, true, errRetryable
		},
	)
	require.ErrorIs(t, err, errRetryable)
	require.Equal(t, 3, calls)
}

func TestRetryZeroAttemptsCallsOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Retry(
		context.Background(),
		Policy{},
		func(ctx context.Context, attempt int) (int, bool, error) {
			calls++
			return 0, true, errRetryable
		},
	)
	require.ErrorIs(t, err, errRetryable)
	require.Equal(t, 1, calls)
}

func TestRetryContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Retry(
		ctx,
		Policy{MaxAttempts: 3, InitialDelay: time.Hour},
		func(ctx context.Context, attempt int) (int, bool, error) {
			cancel()
			return 0, true, errRetryable
		},
	)
	require.ErrorIs(t, err, context.Canceled)
}
