package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithPolicy_RetriesServerErrors(t *testing.T) {
	calls := 0
	var retries []int
	got, err := RetryWithPolicy(context.Background(), fastPolicy(3),
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &Error{Kind: KindUpstreamServer}
			}
			return "ok", nil
		},
		Retryable,
		func(attempt int, delay time.Duration, err error) { retries = append(retries, attempt) },
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryWithPolicy_NeverRetriesAuthOrRateLimit(t *testing.T) {
	for _, kind := range []Kind{KindUpstreamAuth, KindUpstreamRateLimit} {
		t.Run(string(kind), func(t *testing.T) {
			calls := 0
			_, err := RetryWithPolicy(context.Background(), fastPolicy(5),
				func(ctx context.Context) (string, error) {
					calls++
					return "", &Error{Kind: kind}
				},
				Retryable, nil)
			require.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, kind, KindOf(err))
		})
	}
}

func TestRetryWithPolicy_Exhausted(t *testing.T) {
	calls := 0
	_, err := RetryWithPolicy(context.Background(), fastPolicy(2),
		func(ctx context.Context) (int, error) {
			calls++
			return 0, &Error{Kind: KindNetwork}
		},
		Retryable, nil)

	var exhausted *RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestRetryWithPolicy_ZeroRetriesReturnsOriginal(t *testing.T) {
	orig := &Error{Kind: KindNetwork}
	_, err := RetryWithPolicy(context.Background(), fastPolicy(0),
		func(ctx context.Context) (int, error) { return 0, orig },
		Retryable, nil)
	assert.Same(t, orig, err)
}

func TestCalculateDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateDelay(p, 0, errors.New("x")))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(p, 2, errors.New("x")))
	assert.Equal(t, time.Second, calculateDelay(p, 10, errors.New("x")))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(p, 0, &Error{RetryAfter: 300 * time.Millisecond}))
}
