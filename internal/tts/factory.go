package tts

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-subvoice/internal/apierr"
)

// Service types.
const (
	TypeOpenAI    = "openai"
	TypeGPTSoVITS = "gptsovits"
	TypePiper     = "piper"
	TypeGoogle    = "google"
)

// Types returns the supported service types.
func Types() []string {
	return []string{TypeOpenAI, TypeGPTSoVITS, TypePiper, TypeGoogle}
}

// Spec is everything needed to build one backend.
type Spec struct {
	Name     string
	Type     string
	Priority int
	Enabled  bool

	APIKey    string
	APIURL    string
	Binary    string
	ModelPath string
	// KeyPath is a service account key file for Google.
	KeyPath string

	// AutoStart launches a local GPT-SoVITS server when it is down.
	AutoStart ServerCommand

	Voice             VoiceSettings
	RequestsPerSecond float64
}

// Factory builds backends from specs. Options given to NewFactory apply to
// every backend it creates.
type Factory struct {
	opts []Option
}

// NewFactory returns a Factory.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts}
}

// New builds the backend described by spec.
func (f *Factory) New(spec Spec) (Backend, error) {
	opts := append([]Option{WithRateLimit(spec.RequestsPerSecond)}, f.opts...)

	switch spec.Type {
	case TypeOpenAI:
		if spec.APIKey == "" {
			return nil, fmt.Errorf("%s: credentials.api_key or OPENAI_API_KEY is required: %w", spec.Name, apierr.ErrInvalidConfig)
		}
		cfg := openai.DefaultConfig(spec.APIKey)
		if spec.APIURL != "" {
			cfg.BaseURL = spec.APIURL
		}
		return NewOpenAI(spec.Name, openai.NewClientWithConfig(cfg), spec.Voice, opts...)
	case TypeGPTSoVITS:
		b, err := NewGPTSoVITS(spec.Name, spec.APIURL, spec.Voice, opts...)
		if err != nil || len(spec.AutoStart.Command) == 0 {
			return b, err
		}
		return WithAutoStart(b, spec.AutoStart, opts...), nil
	case TypePiper:
		return NewPiper(spec.Name, spec.Binary, spec.ModelPath, spec.Voice, opts...)
	case TypeGoogle:
		switch {
		case spec.KeyPath != "":
			client, err := GoogleClient(context.Background(), spec.KeyPath)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", spec.Name, err)
			}
			opts = append(opts, WithHTTPClient(client))
		case spec.APIKey == "":
			return nil, fmt.Errorf("%s: credentials.key_path or credentials.api_key is required: %w", spec.Name, apierr.ErrInvalidConfig)
		}
		return NewGoogle(spec.Name, spec.APIURL, spec.APIKey, spec.Voice, opts...)
	default:
		return nil, fmt.Errorf("%s: %w %q", spec.Name, ErrUnknownType, spec.Type)
	}
}
