package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/audio"
)

// defaultPiperRate is used when the model config does not state one.
const defaultPiperRate = 22050

// piperModelConfig is the part of <model>.onnx.json read here.
type piperModelConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

var _ Backend = (*PiperBackend)(nil)

// PiperBackend runs the Piper binary once per request, writing text to
// stdin and reading raw 16-bit mono PCM from stdout.
type PiperBackend struct {
	name       string
	binary     string
	modelPath  string
	configPath string
	format     audio.Format
	voice      VoiceSettings
	opts       options
}

// NewPiper creates a Piper backend. binary defaults to "piper" on PATH.
// The model's JSON config, when present next to the model, supplies the
// sample rate.
func NewPiper(name, binary, modelPath string, voice VoiceSettings, opts ...Option) (*PiperBackend, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%s: credentials.model_path is required: %w", name, apierr.ErrInvalidConfig)
	}
	if binary == "" {
		binary = "piper"
	}

	b := &PiperBackend{
		name:      name,
		binary:    binary,
		modelPath: modelPath,
		format:    audio.Format{SampleRate: defaultPiperRate, Channels: 1},
		voice:     voice,
		opts:      newOptions(opts),
	}

	cfgPath := modelPath + ".json"
	if _, err := os.Stat(cfgPath); err != nil {
		cfgPath = strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
	}
	if data, err := os.ReadFile(cfgPath); err == nil { // #nosec G304 -- sibling of configured model
		b.configPath = cfgPath
		var mc piperModelConfig
		if err := json.Unmarshal(data, &mc); err == nil && mc.Audio.SampleRate > 0 {
			b.format.SampleRate = mc.Audio.SampleRate
		}
	}
	return b, nil
}

// Name returns the service name.
func (b *PiperBackend) Name() string { return b.name }

// Synthesize runs Piper for req.Text.
func (b *PiperBackend) Synthesize(ctx context.Context, req Request) (audio.Buffer, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Silence(b.format, emptyTextSilence), nil
	}

	args := b.args()
	return apierr.RetryWithBackoff(ctx, b.opts.retryConfig(b.name), func() (audio.Buffer, error) {
		out, err := b.opts.run(ctx, b.binary, args, []byte(req.Text))
		if err != nil {
			return audio.Buffer{}, classifyExecError(b.name, err)
		}
		if len(out) == 0 {
			return audio.Buffer{}, fmt.Errorf("%s: empty output: %w", b.name, apierr.ErrUnavailable)
		}
		return audio.FromPCM16LE(out, b.format)
	}, apierr.IsTransient)
}

func (b *PiperBackend) args() []string {
	args := []string{"--model", b.modelPath, "--output-raw"}
	if b.configPath != "" {
		args = append(args, "--config", b.configPath)
	}
	// Piper expresses speed as phoneme length: 2x speed is scale 0.5.
	if s := b.voice.SpeedOr(1); s != 1 {
		args = append(args, "--length-scale", strconv.FormatFloat(1/s, 'f', 2, 64))
	}
	if b.voice.Voice != "" {
		args = append(args, "--speaker", b.voice.Voice)
	}
	return args
}

// Health checks that the binary and model exist.
func (b *PiperBackend) Health(context.Context) error {
	if _, err := exec.LookPath(b.binary); err != nil {
		return fmt.Errorf("%s: %w: %w", b.name, apierr.ErrInvalidConfig, err)
	}
	if _, err := os.Stat(b.modelPath); err != nil {
		return fmt.Errorf("%s: model: %w: %w", b.name, apierr.ErrInvalidConfig, err)
	}
	return nil
}

// Close is a no-op; each request uses a fresh process.
func (b *PiperBackend) Close() error { return nil }

func classifyExecError(name string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", name, apierr.ErrTimeout)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s: %w: %w", name, apierr.ErrInvalidConfig, err)
	default:
		return fmt.Errorf("%s: %w: %w", name, apierr.ErrUnavailable, err)
	}
}

// runCommand is the production commandRunner.
func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binary comes from user config
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
