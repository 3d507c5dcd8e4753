package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 350*time.Millisecond, p.Delay(3))
	assert.Equal(t, 350*time.Millisecond, p.Delay(10))
}

func TestPolicy_ZeroValueRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return &StatusError{Code: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
}

func TestPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		OnRetry: func(_ int, d time.Duration, _ error) {
			delays = append(delays, d)
		},
	}

	calls := 0
	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return &StatusError{Code: 429, Message: "rate limited"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestPolicy_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 5}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return &StatusError{Code: 404}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, 404, status.Code)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestPolicy_PermanentStopsAndUnwraps(t *testing.T) {
	sentinel := errors.New("unsupported")
	calls := 0
	err := Policy{MaxAttempts: 3, Retryable: func(error) bool { return true }}.Do(
		context.Background(),
		func(context.Context, int) error {
			calls++
			return Permanent(sentinel)
		},
	)

	assert.Equal(t, 1, calls)
	assert.Same(t, sentinel, err)
	assert.Nil(t, Permanent(nil))
}

func TestPolicy_ExhaustedWrapsLastError(t *testing.T) {
	reset := fmt.Errorf("read: %w", syscall.ECONNRESET)
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func(context.Context, int) error {
		return reset
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
}

func TestPolicy_ContextCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		OnRetry:     func(int, time.Duration, error) { cancel() },
	}

	calls := 0
	start := time.Now()
	err := p.Do(ctx, func(context.Context, int) error {
		calls++
		return &StatusError{Code: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"reset", syscall.ECONNRESET, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"net timeout", timeoutErr{}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"429", &StatusError{Code: 429}, true},
		{"502", &StatusError{Code: 502}, true},
		{"400", &StatusError{Code: 400}, false},
		{"403", &StatusError{Code: 403}, false},
		{"plain", errors.New("bad input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}
