package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/audio"
)

const (
	// GoogleAPIURL is the Cloud Text-to-Speech REST endpoint.
	GoogleAPIURL = "https://texttospeech.googleapis.com/v1"

	googleScope = "https://www.googleapis.com/auth/cloud-platform"

	defaultGoogleLanguage = "zh-CN"
	defaultGoogleVoice    = "zh-CN-Standard-A"
)

// Price in USD per 1000 characters by voice tier.
const (
	googleStandardPer1K = 0.004
	googlePremiumPer1K  = 0.016
)

// EstimateGoogleCost returns the USD cost of synthesizing chars characters
// with voice. WaveNet, Neural2 and Studio voices bill at the premium rate.
func EstimateGoogleCost(voice string, chars int) float64 {
	rate := googleStandardPer1K
	for _, tier := range []string{"Wavenet", "Neural2", "Studio", "Chirp"} {
		if strings.Contains(voice, tier) {
			rate = googlePremiumPer1K
			break
		}
	}
	return rate * float64(chars) / 1000
}

// googleFormat is what LINEAR16 responses are requested in.
var googleFormat = audio.Format{SampleRate: 24000, Channels: 1}

type googleRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoice       `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleInput struct {
	Text string `json:"text"`
}

type googleVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	Pitch           float64 `json:"pitch,omitempty"`
	SampleRateHertz int     `json:"sampleRateHertz"`
}

// googleResponse carries base64 audio, which encoding/json decodes into
// a byte slice.
type googleResponse struct {
	AudioContent []byte `json:"audioContent"`
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var _ Backend = (*GoogleBackend)(nil)

// GoogleBackend calls the Google Cloud Text-to-Speech REST API. Requests
// are authenticated either by an API key header or by the HTTP client,
// which GoogleClient builds from a service account key file.
type GoogleBackend struct {
	name    string
	baseURL string
	apiKey  string
	voice   VoiceSettings
	opts    options
}

// NewGoogle returns a backend for apiURL (GoogleAPIURL when empty). apiKey
// may be empty when the HTTP client given through WithHTTPClient carries
// credentials.
func NewGoogle(name, apiURL, apiKey string, voice VoiceSettings, opts ...Option) (*GoogleBackend, error) {
	if apiURL == "" {
		apiURL = GoogleAPIURL
	}
	if voice.Language == "" {
		voice.Language = defaultGoogleLanguage
	}
	if voice.Voice == "" && voice.Language == defaultGoogleLanguage {
		voice.Voice = defaultGoogleVoice
	}
	if s := voice.Speed; s != 0 && (s < 0.25 || s > 4) {
		return nil, fmt.Errorf("%s: voice.speed %g outside 0.25..4: %w", name, s, apierr.ErrInvalidConfig)
	}
	if p := voice.Pitch; p < -20 || p > 20 {
		return nil, fmt.Errorf("%s: voice.pitch %g outside -20..20: %w", name, p, apierr.ErrInvalidConfig)
	}
	return &GoogleBackend{
		name:    name,
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		voice:   voice,
		opts:    newOptions(opts),
	}, nil
}

// GoogleClient returns an HTTP client authenticated with the service
// account key at keyPath.
func GoogleClient(ctx context.Context, keyPath string) (*http.Client, error) {
	data, err := os.ReadFile(keyPath) // #nosec G304 -- user-configured key path
	if err != nil {
		return nil, fmt.Errorf("read key file: %w: %w", err, apierr.ErrInvalidConfig)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, googleScope)
	if err != nil {
		return nil, fmt.Errorf("parse key file %s: %w: %w", keyPath, err, apierr.ErrInvalidConfig)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = 2 * time.Minute
	return client, nil
}

// Name returns the service name.
func (b *GoogleBackend) Name() string { return b.name }

// Synthesize requests LINEAR16 audio for req.Text.
func (b *GoogleBackend) Synthesize(ctx context.Context, req Request) (audio.Buffer, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Silence(googleFormat, emptyTextSilence), nil
	}

	body := googleRequest{
		Input: googleInput{Text: req.Text},
		Voice: googleVoice{LanguageCode: b.voice.Language, Name: b.voice.Voice},
		AudioConfig: googleAudioConfig{
			AudioEncoding:   "LINEAR16",
			SpeakingRate:    b.voice.Speed,
			Pitch:           b.voice.Pitch,
			SampleRateHertz: googleFormat.SampleRate,
		},
	}
	content, err := apierr.RetryWithBackoff(ctx, b.opts.retryConfig(b.name), func() ([]byte, error) {
		if err := b.opts.wait(ctx); err != nil {
			return nil, err
		}
		return b.synthesize(ctx, body)
	}, apierr.IsTransient)
	if err != nil {
		return audio.Buffer{}, err
	}

	// LINEAR16 content carries a WAV header.
	buf, err := audio.ParseWAV(content)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%s: decode response: %w", b.name, err)
	}
	return buf, nil
}

func (b *GoogleBackend) synthesize(ctx context.Context, body googleRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data, err := b.do(ctx, http.MethodPost, b.baseURL+"/text:synthesize", payload)
	if err != nil {
		return nil, err
	}
	var resp googleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("%s: empty audio content: %w", b.name, apierr.ErrUnavailable)
	}
	return resp.AudioContent, nil
}

func (b *GoogleBackend) do(ctx context.Context, method, endpoint string, payload []byte) (_ []byte, err error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", b.apiKey)
	}

	resp, err := b.opts.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", apierr.ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseGoogleError(resp.StatusCode, data)
	}
	return data, nil
}

// parseGoogleError classifies by the canonical status name when the body
// has one, and by HTTP status otherwise.
func parseGoogleError(status int, body []byte) error {
	var e googleError
	if json.Unmarshal(body, &e) != nil || e.Error.Status == "" {
		return apierr.FromStatus(status, strings.TrimSpace(string(body)))
	}
	msg := e.Error.Message
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch e.Error.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return fmt.Errorf("%s: %w", msg, apierr.ErrAuthFailed)
	case "RESOURCE_EXHAUSTED":
		if strings.Contains(strings.ToLower(msg), "quota") {
			return fmt.Errorf("%s: %w", msg, apierr.ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, apierr.ErrRateLimit)
	case "DEADLINE_EXCEEDED":
		return fmt.Errorf("%s: %w", msg, apierr.ErrTimeout)
	case "UNAVAILABLE", "INTERNAL", "ABORTED":
		return fmt.Errorf("%s: %w", msg, apierr.ErrUnavailable)
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION", "NOT_FOUND", "OUT_OF_RANGE":
		return fmt.Errorf("%s: %w", msg, apierr.ErrBadRequest)
	}
	return apierr.FromStatus(status, msg)
}

// Health lists the voices for the configured language, which checks both
// reachability and credentials.
func (b *GoogleBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	endpoint := b.baseURL + "/voices?languageCode=" + url.QueryEscape(b.voice.Language)
	if _, err := b.do(ctx, http.MethodGet, endpoint, nil); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	return nil
}

// Close is a no-op; the HTTP client owns no per-backend resources.
func (b *GoogleBackend) Close() error { return nil }
