// Package tts adapts speech synthesis services to a single Backend
// capability used by the reconciliation engine.
//
// Backends translate their transport failures into apierr sentinels so the
// engine can tell transient faults from setup defects without inspecting
// messages.
package tts

import (
	"context"
	"errors"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
)

// Default transport retry configuration.
const (
	defaultMaxRetries = 2
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 10 * time.Second
)

// emptyTextSilence is returned for whitespace-only text.
const emptyTextSilence = 100 * time.Millisecond

// ErrUnknownType indicates a service type with no backend implementation.
var ErrUnknownType = errors.New("unknown service type")

// ErrUnknownEmotion indicates an emotion preset name that does not exist.
var ErrUnknownEmotion = errors.New("unknown emotion preset")

// Request is one synthesis call.
type Request struct {
	Text string

	// Reference marks the first attempt of the first cue. Backends that
	// clone a voice may keep its output as the reference for later cues.
	Reference bool
}

// Backend synthesizes speech. Implementations are used by one goroutine at
// a time unless documented otherwise.
type Backend interface {
	// Name returns the configured service name.
	Name() string

	// Synthesize returns the audio for req.Text.
	Synthesize(ctx context.Context, req Request) (audio.Buffer, error)

	// Health returns nil when the service can accept requests.
	Health(ctx context.Context) error

	// Close releases processes, files and connections held by the backend.
	Close() error
}
