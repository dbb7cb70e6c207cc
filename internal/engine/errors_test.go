package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"openai status 401", errors.New("error, status code: 401, status: 401 Unauthorized, message: bad key"), KindUpstreamAuth},
		{"openai status 429", errors.New("error, status code: 429, status: 429 Too Many Requests"), KindUpstreamRateLimit},
		{"openai status 503", errors.New("error, status code: 503, message: unavailable"), KindUpstreamServer},
		{"anthropic rate limit", errors.New("anthropic api error type: rate_limit_error, message: slow down"), KindUpstreamRateLimit},
		{"anthropic overloaded", errors.New("anthropic api error type: overloaded_error"), KindUpstreamServer},
		{"gemini bad key", errors.New("googleapi: Error 400: API key not valid. Please pass a valid API key."), KindUpstreamAuth},
		{"dns failure", errors.New("dial tcp: lookup api.example.com: no such host"), KindNetwork},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{"unknown", errors.New("something odd"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyLLMError("gpt", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "gpt", e.Provider)
		})
	}
}

func TestClassifyLLMErrorKeepsExistingKind(t *testing.T) {
	in := &Error{Kind: KindUpstreamAuth}
	out := ClassifyLLMError("claude", in)
	assert.Same(t, in, out)
	assert.Equal(t, "claude", in.Provider)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&Error{Kind: KindUpstreamServer}))
	assert.True(t, Retryable(&Error{Kind: KindNetwork}))
	assert.False(t, Retryable(&Error{Kind: KindUpstreamAuth}))
	assert.False(t, Retryable(&Error{Kind: KindUpstreamRateLimit}))
	assert.False(t, Retryable(nil))
}

func TestErrorMessageJoinsReasons(t *testing.T) {
	err := &Error{Kind: KindBlocked, Op: "validate", Reasons: []string{"a", "b"}}
	assert.Equal(t, "validate: Blocked: a; b", err.Error())
	assert.True(t, IsKind(err, KindBlocked))
	assert.True(t, IsKind(fmt.Errorf("outer: %w", err), KindBlocked))
}

func TestHintCoversUserFacingKinds(t *testing.T) {
	assert.Equal(t, "check your key", Hint(KindUpstreamAuth))
	assert.Equal(t, "wait and retry", Hint(KindUpstreamRateLimit))
	assert.Equal(t, "check connectivity", Hint(KindNetwork))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
	assert.Greater(t, EstimateTokens("func main() {\n\tfmt.Println(1)\n}"), 5)
}
