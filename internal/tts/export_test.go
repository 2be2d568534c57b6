package tts

import (
	"context"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
)

// Exports for testing.

// NewTestOpenAI creates an OpenAIBackend around a mock client.
func NewTestOpenAI(name string, client speechClient, voice VoiceSettings, opts ...Option) (*OpenAIBackend, error) {
	return newOpenAI(name, client, voice, opts...)
}

// WithRunner replaces the subprocess runner used by Piper.
func WithRunner(fn func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)) Option {
	return func(o *options) { o.run = fn }
}

// PiperArgs returns the command-line arguments a backend would use.
func PiperArgs(b *PiperBackend) []string { return b.args() }

// PiperFormat returns the PCM format a backend decodes.
func PiperFormat(b *PiperBackend) audio.Format { return b.format }

// ClassifyOpenAIError exports the OpenAI error mapping.
var ClassifyOpenAIError = classifyOpenAIError

// Server is the launched-process contract used by auto-start.
type Server = server

// WithServerStarter replaces the process launcher used by auto-start.
func WithServerStarter(fn func(ServerCommand) (Server, error)) Option {
	return func(o *options) { o.startServer = fn }
}

// WithPollInterval sets how often auto-start re-checks health.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// StartProcess exports the child-process launcher.
var StartProcess = startProcess

// ParseGoogleError exports the Google error mapping.
var ParseGoogleError = parseGoogleError
