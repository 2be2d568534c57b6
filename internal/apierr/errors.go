// Package apierr provides the error vocabulary shared by speech backends and
// the retry helper they use.
//
// Backend adapters map transport failures to these sentinels with
// fmt.Errorf("%s: %w", msg, sentinel). The synthesis engine only inspects
// the two classes: transient errors are retried inside a cue's attempt
// budget, permanent errors abort the run without switching backends.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors for backend failures.
var (
	// ErrRateLimit indicates the backend throttled the request (transient).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates a billing or quota problem (permanent).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out (transient).
	ErrTimeout = errors.New("request timeout")

	// ErrUnavailable indicates a connection failure or 5xx response (transient).
	ErrUnavailable = errors.New("service unavailable")

	// ErrAuthFailed indicates invalid credentials (permanent).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates the backend rejected the request itself (permanent).
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidConfig indicates a backend was configured incorrectly (permanent).
	ErrInvalidConfig = errors.New("invalid backend configuration")
)

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether err signals a setup defect that no retry or
// backend swap can fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidConfig)
}

// FromStatus maps an HTTP status code and server message to a sentinel.
// Statuses below 400 return nil.
func FromStatus(code int, msg string) error {
	if code < http.StatusBadRequest {
		return nil
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch code {
	case http.StatusTooManyRequests:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "billing") {
			return fmt.Errorf("%s: %w", msg, ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, ErrRateLimit)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, ErrAuthFailed)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", msg, ErrBadRequest)
	}
	if code >= http.StatusInternalServerError {
		return fmt.Errorf("HTTP %d: %s: %w", code, msg, ErrUnavailable)
	}
	return fmt.Errorf("HTTP %d: %s", code, msg)
}
