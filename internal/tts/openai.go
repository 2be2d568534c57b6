package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/audio"
)

// OpenAI speech output is raw 24 kHz signed 16-bit little-endian mono.
var openAIPCM = audio.Format{SampleRate: 24000, Channels: 1}

// OpenAI speed bounds.
const (
	openAIMinSpeed = 0.25
	openAIMaxSpeed = 4.0
)

// OpenAIVoices lists the supported voice names.
var OpenAIVoices = []string{
	string(openai.VoiceAlloy),
	string(openai.VoiceEcho),
	string(openai.VoiceFable),
	string(openai.VoiceOnyx),
	string(openai.VoiceNova),
	string(openai.VoiceShimmer),
}

// Price in USD per 1000 input characters.
var openAICostPer1K = map[openai.SpeechModel]float64{
	openai.TTSModel1:   0.015,
	openai.TTSModel1HD: 0.030,
}

// EstimateCost returns the USD cost of synthesizing chars characters with
// model, or 0 for unknown models.
func EstimateCost(model string, chars int) float64 {
	return openAICostPer1K[openai.SpeechModel(model)] * float64(chars) / 1000
}

// speechClient is the subset of *openai.Client used here.
type speechClient interface {
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Compile-time interface compliance checks.
var (
	_ Backend      = (*OpenAIBackend)(nil)
	_ speechClient = (*openai.Client)(nil)
)

// OpenAIBackend synthesizes speech with the OpenAI audio API.
type OpenAIBackend struct {
	name   string
	client speechClient
	model  openai.SpeechModel
	voice  VoiceSettings
	opts   options
}

// NewOpenAI creates an OpenAI backend. Voice.Voice defaults to alloy and
// Voice.Model to tts-1.
func NewOpenAI(name string, client *openai.Client, voice VoiceSettings, opts ...Option) (*OpenAIBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: nil client: %w", name, apierr.ErrInvalidConfig)
	}
	return newOpenAI(name, client, voice, opts...)
}

func newOpenAI(name string, client speechClient, voice VoiceSettings, opts ...Option) (*OpenAIBackend, error) {
	if voice.Voice == "" {
		voice.Voice = string(openai.VoiceAlloy)
	}
	if voice.Model == "" {
		voice.Model = string(openai.TTSModel1)
	}
	if !slices.Contains(OpenAIVoices, voice.Voice) {
		return nil, fmt.Errorf("%s: voice %q not in %s: %w",
			name, voice.Voice, strings.Join(OpenAIVoices, ", "), apierr.ErrInvalidConfig)
	}
	if _, ok := openAICostPer1K[openai.SpeechModel(voice.Model)]; !ok {
		return nil, fmt.Errorf("%s: model %q: %w", name, voice.Model, apierr.ErrInvalidConfig)
	}
	if s := voice.SpeedOr(1); s < openAIMinSpeed || s > openAIMaxSpeed {
		return nil, fmt.Errorf("%s: speed %.2f outside %.2f..%.1f: %w",
			name, s, openAIMinSpeed, openAIMaxSpeed, apierr.ErrInvalidConfig)
	}
	return &OpenAIBackend{
		name:   name,
		client: client,
		model:  openai.SpeechModel(voice.Model),
		voice:  voice,
		opts:   newOptions(opts),
	}, nil
}

// Name returns the service name.
func (b *OpenAIBackend) Name() string { return b.name }

// Synthesize requests speech for req.Text, retrying transient failures.
func (b *OpenAIBackend) Synthesize(ctx context.Context, req Request) (audio.Buffer, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Silence(openAIPCM, emptyTextSilence), nil
	}

	speechReq := openai.CreateSpeechRequest{
		Model:          b.model,
		Input:          req.Text,
		Voice:          openai.SpeechVoice(b.voice.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          b.voice.SpeedOr(1),
	}

	return apierr.RetryWithBackoff(ctx, b.opts.retryConfig(b.name), func() (audio.Buffer, error) {
		if err := b.opts.wait(ctx); err != nil {
			return audio.Buffer{}, err
		}
		resp, err := b.client.CreateSpeech(ctx, speechReq)
		if err != nil {
			return audio.Buffer{}, classifyOpenAIError(err)
		}
		defer func() { _ = resp.Close() }()

		data, err := io.ReadAll(resp)
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("read speech: %w: %w", apierr.ErrUnavailable, err)
		}
		return audio.FromPCM16LE(data, openAIPCM)
	}, apierr.IsTransient)
}

// Health lists models as a cheap authenticated probe.
func (b *OpenAIBackend) Health(ctx context.Context) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s: %w", b.name, classifyOpenAIError(err))
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-backend resources.
func (b *OpenAIBackend) Close() error { return nil }

// classifyOpenAIError maps go-openai errors to apierr sentinels.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if mapped := apierr.FromStatus(apiErr.HTTPStatusCode, apiErr.Message); mapped != nil {
			return mapped
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if mapped := apierr.FromStatus(reqErr.HTTPStatusCode, reqErr.Error()); mapped != nil {
			return mapped
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", apierr.ErrUnavailable, err)
	}
	return err
}
