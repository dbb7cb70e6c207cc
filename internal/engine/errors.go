// Package engine holds the types shared by every component of the agent core:
// actions, execution records, the error taxonomy, retry policies, listener
// hooks and the session state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind classifies every error the core recognizes.
type Kind string

const (
	KindInvalidInput      Kind = "InvalidInput"
	KindAccessDenied      Kind = "AccessDenied"
	KindBlocked           Kind = "Blocked"
	KindTooLarge          Kind = "TooLarge"
	KindTimeout           Kind = "Timeout"
	KindNotFound          Kind = "NotFound"
	KindUpstreamAuth      Kind = "UpstreamAuth"
	KindUpstreamRateLimit Kind = "UpstreamRateLimit"
	KindUpstreamServer    Kind = "UpstreamServer"
	KindNetwork           Kind = "Network"
	KindInternal          Kind = "Internal"
)

// Error is a classified error. Reasons lists every individual failure when
// several checks failed together (validation).
type Error struct {
	Kind       Kind
	Op         string
	Provider   string
	Reasons    []string
	HTTPStatus int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	switch {
	case len(e.Reasons) > 0:
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, "; "))
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an *Error of the given kind with a single formatted reason.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Reasons: []string{fmt.Sprintf(format, args...)}}
}

// Wrap attaches a kind and operation to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Context
// deadlines map to Timeout; anything else unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var statusPattern = regexp.MustCompile(`\bstatus(?: code)?:?\s*(\d{3})\b`)

// ClassifyLLMError maps a provider error to a classified *Error. Already
// classified errors are returned unchanged apart from the provider name.
func ClassifyLLMError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Provider == "" {
			e.Provider = provider
		}
		return e
	}

	out := &Error{Provider: provider, Op: "call", Err: err}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		out.HTTPStatus, _ = strconv.Atoi(m[1])
	}
	out.Kind = classifyMessage(err, out.HTTPStatus)
	return out
}

func classifyMessage(err error, status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindUpstreamAuth
	case status == 429:
		return KindUpstreamRateLimit
	case status >= 500:
		return KindUpstreamServer
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key",
		"invalid x-api-key", "api key not valid", "authentication"):
		return KindUpstreamAuth
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests", "resource_exhausted"):
		return KindUpstreamRateLimit
	case containsAny(msg, "500", "502", "503", "504", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout", "overloaded"):
		return KindUpstreamServer
	case containsAny(msg, "deadline exceeded", "timeout", "timed out"):
		return KindTimeout
	case containsAny(msg, "connection reset", "connection refused", "no such host", "dns",
		"network", "temporary failure", "eof"):
		return KindNetwork
	}
	return KindInternal
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Retryable reports whether an LLM call that failed with err may be retried.
// Auth and rate-limit failures never are.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstreamServer, KindNetwork, KindTimeout:
		return true
	}
	return false
}

// Hint returns a short actionable suggestion for a kind.
func Hint(kind Kind) string {
	switch kind {
	case KindUpstreamAuth:
		return "check your key"
	case KindUpstreamRateLimit:
		return "wait and retry"
	case KindNetwork:
		return "check connectivity"
	case KindUpstreamServer:
		return "the provider is having trouble, try again shortly"
	case KindTimeout:
		return "increase the timeout or simplify the request"
	case KindBlocked, KindAccessDenied:
		return "the path or command was rejected by the safety policy"
	case KindTooLarge:
		return "reduce the size of the input or raise the limit"
	case KindNotFound:
		return "check that the file or script exists"
	case KindInvalidInput:
		return "check the arguments"
	}
	return "re-run with --debug for details"
}
