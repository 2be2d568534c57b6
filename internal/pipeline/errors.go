package pipeline

import "errors"

// Sentinel errors for the pipeline package.
var (
	// ErrBackendsExhausted indicates every enabled backend failed. It wraps
	// the last failure, usually a *synth.AudioTooLongError.
	ErrBackendsExhausted = errors.New("all synthesis backends exhausted")

	// ErrNoBackends indicates no enabled backend was configured.
	ErrNoBackends = errors.New("no enabled synthesis backend")

	// ErrUnhealthy indicates a backend failed its health check.
	ErrUnhealthy = errors.New("backend unhealthy")
)
