package synth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the synth package.
var (
	// ErrAudioTooLong matches AudioTooLongError through errors.Is.
	ErrAudioTooLong = errors.New("audio too long")

	// ErrInvalidTarget indicates a cue window that is zero or negative.
	ErrInvalidTarget = errors.New("target duration must be positive")
)

// AudioTooLongError reports a cue whose audio stayed above the retry
// threshold after every attempt. It signals that the backend should be
// replaced, not that anything failed.
type AudioTooLongError struct {
	Backend string
	Index   int
	Text    string
	Actual  time.Duration
	Target  time.Duration
	Retries int
}

func (e *AudioTooLongError) Error() string {
	return fmt.Sprintf("audio too long on %s (cue %d): %.2fs vs %.2fs target (%.2fx) after %d attempts",
		e.Backend, e.Index, e.Actual.Seconds(), e.Target.Seconds(), e.Ratio(), e.Retries)
}

// Is reports whether target is ErrAudioTooLong.
func (e *AudioTooLongError) Is(target error) bool {
	return target == ErrAudioTooLong
}

// Ratio returns Actual / Target.
func (e *AudioTooLongError) Ratio() float64 {
	if e.Target <= 0 {
		return 0
	}
	return float64(e.Actual) / float64(e.Target)
}
