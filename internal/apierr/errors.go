// Package apierr provides shared error sentinels and classification helpers
// for the transcription provider boundary. Provider-specific error types are
// mapped into these sentinels at the adapter, so the rest of the engine can
// branch with errors.Is/errors.As without knowing the wire protocol.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for provider interaction failures.
var (
	// ErrRateLimit indicates the provider rate limit was exceeded (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the provider quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates provider authentication failed (invalid key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")
)

// RateLimitError is the typed 429 error. It wraps ErrRateLimit so
// errors.Is(err, ErrRateLimit) holds, and carries the provider's
// Retry-After hint when one was given.
type RateLimitError struct {
	// RetryAfterSeconds is the provider-suggested wait, 0 when absent.
	RetryAfterSeconds float64

	// Message is the provider's error message, if any.
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rate limit exceeded: %s", e.Message)
	}
	return "rate limit exceeded"
}

// Unwrap makes errors.Is(err, ErrRateLimit) true for RateLimitError values.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimit
}

// IsRateLimit reports whether err should be treated as a rate-limit failure.
// An error qualifies when it is (or wraps) the RateLimitError type or the
// ErrRateLimit sentinel, or when its message mentions "429" or "rate limit".
// The message check is deliberately loose: some providers surface 429s only
// as free text inside a generic error.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	if errors.Is(err, ErrRateLimit) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// RetryAfter extracts the provider-suggested wait in seconds from err, or 0
// when err carries no hint.
func RetryAfter(err error) float64 {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfterSeconds
	}
	return 0
}
