package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/lang"
)

const (
	// maxAudioResponse bounds a single synthesized clip.
	maxAudioResponse = 64 * 1024 * 1024

	// healthTimeout bounds the GET / liveness probe.
	healthTimeout = 5 * time.Second
)

// sovitsRequest is the GPT-SoVITS v2 /tts body.
type sovitsRequest struct {
	Text              string   `json:"text"`
	TextLang          string   `json:"text_lang"`
	RefAudioPath      string   `json:"ref_audio_path"`
	AuxRefAudioPaths  []string `json:"aux_ref_audio_paths,omitempty"`
	PromptText        string   `json:"prompt_text"`
	PromptLang        string   `json:"prompt_lang"`
	TopK              int      `json:"top_k,omitempty"`
	TopP              float64  `json:"top_p,omitempty"`
	Temperature       float64  `json:"temperature,omitempty"`
	SpeedFactor       float64  `json:"speed_factor,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
	Seed              int64    `json:"seed,omitempty"`
	MediaType         string   `json:"media_type"`
	StreamingMode     bool     `json:"streaming_mode"`
}

// sovitsError is the JSON error body returned by the server.
type sovitsError struct {
	Message   string `json:"message"`
	Exception string `json:"Exception"`
}

var _ Backend = (*GPTSoVITSBackend)(nil)

// GPTSoVITSBackend talks to a GPT-SoVITS v2 API server.
//
// When a request is flagged Reference, its output is kept in a temporary
// WAV file and sent as an auxiliary reference for later requests, which
// keeps timbre consistent across cues. Close removes that file.
type GPTSoVITSBackend struct {
	name    string
	baseURL string
	voice   VoiceSettings
	opts    options

	mu      sync.Mutex
	auxRef  string
	tempDir string
}

// NewGPTSoVITS validates voice settings and returns a backend for apiURL.
func NewGPTSoVITS(name, apiURL string, voice VoiceSettings, opts ...Option) (*GPTSoVITSBackend, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("%s: credentials.api_url is required: %w", name, apierr.ErrInvalidConfig)
	}
	var missing []string
	if voice.RefAudioPath == "" {
		missing = append(missing, "ref_audio_path")
	}
	if voice.PromptText == "" {
		missing = append(missing, "prompt_text")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: voice.%s required: %w", name, strings.Join(missing, ", voice."), apierr.ErrInvalidConfig)
	}
	if err := lang.Validate(voice.Language); err != nil {
		return nil, fmt.Errorf("%s: voice.language: %w: %w", name, err, apierr.ErrInvalidConfig)
	}
	if err := lang.Validate(voice.PromptLang); err != nil {
		return nil, fmt.Errorf("%s: voice.prompt_lang: %w: %w", name, err, apierr.ErrInvalidConfig)
	}
	voice.Language = lang.Normalize(voice.Language)
	voice.PromptLang = lang.Normalize(voice.PromptLang)

	return &GPTSoVITSBackend{
		name:    name,
		baseURL: strings.TrimRight(apiURL, "/"),
		voice:   voice,
		opts:    newOptions(opts),
	}, nil
}

// Name returns the service name.
func (b *GPTSoVITSBackend) Name() string { return b.name }

// Synthesize posts req.Text to /tts and decodes the WAV response.
func (b *GPTSoVITSBackend) Synthesize(ctx context.Context, req Request) (audio.Buffer, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Silence(audio.Format{SampleRate: 32000, Channels: 1}, emptyTextSilence), nil
	}

	body := b.requestBody(req.Text)
	data, err := apierr.RetryWithBackoff(ctx, b.opts.retryConfig(b.name), func() ([]byte, error) {
		if err := b.opts.wait(ctx); err != nil {
			return nil, err
		}
		return b.post(ctx, body)
	}, apierr.IsTransient)
	if err != nil {
		return audio.Buffer{}, err
	}

	buf, err := audio.ParseWAV(data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%s: decode response: %w", b.name, err)
	}
	if req.Reference {
		if err := b.keepReference(data); err != nil {
			b.opts.logger.Warn("could not keep reference audio", "backend", b.name, "err", err)
		}
	}
	return buf, nil
}

func (b *GPTSoVITSBackend) requestBody(text string) sovitsRequest {
	v := b.voice
	r := sovitsRequest{
		Text:              text,
		TextLang:          v.Language,
		RefAudioPath:      v.RefAudioPath,
		PromptText:        v.PromptText,
		PromptLang:        v.PromptLang,
		TopK:              v.TopK,
		TopP:              v.TopP,
		Temperature:       v.Temperature,
		SpeedFactor:       v.Speed,
		RepetitionPenalty: v.RepetitionPenalty,
		Seed:              v.Seed,
		MediaType:         "wav",
	}
	b.mu.Lock()
	if b.auxRef != "" {
		r.AuxRefAudioPaths = []string{b.auxRef}
	}
	b.mu.Unlock()
	return r
}

func (b *GPTSoVITSBackend) post(ctx context.Context, reqBody sovitsRequest) (_ []byte, err error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.opts.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", apierr.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseSovitsError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// parseSovitsError extracts the server message and classifies the status.
func parseSovitsError(status int, body []byte) error {
	var e sovitsError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Message != "" && e.Exception != "":
			msg = e.Message + ": " + e.Exception
		case e.Message != "":
			msg = e.Message
		}
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return apierr.FromStatus(status, msg)
}

// classifyTransportError maps client-side failures to sentinels.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", apierr.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", apierr.ErrUnavailable, err)
}

// keepReference stores data as the auxiliary reference clip.
func (b *GPTSoVITSBackend) keepReference(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tempDir == "" {
		dir, err := os.MkdirTemp("", "subvoice-ref-*")
		if err != nil {
			return err
		}
		b.tempDir = dir
	}
	f, err := os.CreateTemp(b.tempDir, "reference-*.wav")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	b.auxRef = f.Name()
	b.opts.logger.Debug("kept reference audio", "backend", b.name, "path", b.auxRef)
	return nil
}

// Health probes GET / and accepts any status below 500.
func (b *GPTSoVITSBackend) Health(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	resp, err := b.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", b.name, classifyTransportError(err))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: HTTP %d: %w", b.name, resp.StatusCode, apierr.ErrUnavailable)
	}
	return nil
}

// Close removes the kept reference audio.
func (b *GPTSoVITSBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.auxRef = ""
	if b.tempDir == "" {
		return nil
	}
	dir := b.tempDir
	b.tempDir = ""
	return os.RemoveAll(dir)
}
