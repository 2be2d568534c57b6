// Package config loads subvoice settings from a TOML file with SUBVOICE_*
// environment overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SUBVOICE_"

// EnvOpenAIKey fills OpenAI credentials left empty in the file.
const EnvOpenAIKey = "OPENAI_API_KEY"

// EnvGoogleCredentials fills a Google key_path left empty in the file.
const EnvGoogleCredentials = "GOOGLE_APPLICATION_CREDENTIALS"

// Time-stretch implementations.
const (
	StretchFFmpeg = "ffmpeg"
	StretchNaive  = "naive"
)

// ErrExists indicates Init would overwrite a file.
var ErrExists = errors.New("config file already exists")

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Credentials holds service access settings.
type Credentials struct {
	APIKey    string `toml:"api_key,omitempty"`
	APIURL    string `toml:"api_url,omitempty"`
	Binary    string `toml:"binary,omitempty"`
	ModelPath string `toml:"model_path,omitempty"`
	KeyPath   string `toml:"key_path,omitempty"`
}

// Voice holds per-service voice parameters.
type Voice struct {
	Voice             string  `toml:"voice,omitempty"`
	Model             string  `toml:"model,omitempty"`
	Language          string  `toml:"language,omitempty"`
	RefAudioPath      string  `toml:"ref_audio_path,omitempty"`
	PromptText        string  `toml:"prompt_text,omitempty"`
	PromptLang        string  `toml:"prompt_lang,omitempty"`
	Speed             float64 `toml:"speed,omitempty"`
	Pitch             float64 `toml:"pitch,omitempty"`
	TopK              int     `toml:"top_k,omitempty"`
	TopP              float64 `toml:"top_p,omitempty"`
	Temperature       float64 `toml:"temperature,omitempty"`
	RepetitionPenalty float64 `toml:"repetition_penalty,omitempty"`
	Seed              int64   `toml:"seed,omitempty"`
	Emotion           string  `toml:"emotion,omitempty"`
}

// Service configures one synthesis backend.
type Service struct {
	Name              string      `toml:"name"`
	Type              string      `toml:"type"`
	Priority          int         `toml:"priority"`
	Enabled           *bool       `toml:"enabled,omitempty"`
	RequestsPerSecond float64     `toml:"requests_per_second,omitempty"`
	Credentials       Credentials `toml:"credentials"`
	Voice             Voice       `toml:"voice"`
	AutoStart         AutoStart   `toml:"auto_start"`
}

// AutoStart launches a local server when the service does not answer.
type AutoStart struct {
	Command        []string `toml:"command,omitempty"`
	Dir            string   `toml:"dir,omitempty"`
	StartupTimeout Duration `toml:"startup_timeout,omitempty"`
}

// IsEnabled reports whether the service takes part in conversions. A
// service without an explicit enabled key is enabled.
func (s Service) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// AudioProcessing tunes the retry and timeline stages.
type AudioProcessing struct {
	OverlapPolicy    string   `toml:"overlap_policy" env:"OVERLAP_POLICY"`
	SpeedAdjustLimit float64  `toml:"speed_adjust_limit" env:"SPEED_LIMIT"`
	FadeDuration     Duration `toml:"fade_duration"`
	MaxRetries       int      `toml:"max_retries" env:"MAX_RETRIES"`
	TimeStretch      string   `toml:"time_stretch" env:"TIME_STRETCH"`
	UseNextStart     bool     `toml:"use_next_start"`
}

// Cache configures the synthesized audio cache.
type Cache struct {
	Enabled   bool   `toml:"enabled" env:"CACHE_ENABLED"`
	Directory string `toml:"directory,omitempty" env:"CACHE_DIR"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

// Output configures the exported track.
type Output struct {
	Format     string `toml:"format" env:"OUTPUT_FORMAT"`
	SampleRate int    `toml:"sample_rate"`
	Channels   int    `toml:"channels"`
	Dir        string `toml:"dir,omitempty" env:"OUTPUT_DIR"`
}

// Logging configures log output.
type Logging struct {
	Level string `toml:"level" env:"LOG_LEVEL"`
}

// Config is the complete subvoice configuration.
type Config struct {
	Services []Service       `toml:"services"`
	Audio    AudioProcessing `toml:"audio_processing"`
	Cache    Cache           `toml:"cache"`
	Output   Output          `toml:"output"`
	Logging  Logging         `toml:"logging"`
}

func enabled(b bool) *bool { return &b }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Services: DefaultServices(),
		Audio: AudioProcessing{
			OverlapPolicy:    timeline.SpeedAdjust.String(),
			SpeedAdjustLimit: timeline.DefaultSpeedLimit,
			FadeDuration:     Duration(timeline.DefaultFadeDuration),
			MaxRetries:       3,
			TimeStretch:      StretchFFmpeg,
		},
		Cache:   Cache{Enabled: true, MaxSizeMB: 500},
		Output:  Output{Format: "wav", SampleRate: 44100, Channels: 1},
		Logging: Logging{Level: "info"},
	}
}

// DefaultServices returns the services used when the file defines none.
func DefaultServices() []Service {
	return []Service{
		{
			Name: "openai", Type: tts.TypeOpenAI, Priority: 1, Enabled: enabled(true),
			RequestsPerSecond: 2,
			Voice:             Voice{Voice: "alloy", Model: "tts-1", Speed: 1},
		},
		{
			Name: "sovits", Type: tts.TypeGPTSoVITS, Priority: 2, Enabled: enabled(false),
			Credentials: Credentials{APIURL: "http://127.0.0.1:9880"},
			Voice:       Voice{Language: "zh", PromptLang: "zh", TopK: 5, TopP: 1, Temperature: 1, Speed: 1, Seed: -1},
		},
		{
			Name: "piper", Type: tts.TypePiper, Priority: 3, Enabled: enabled(false),
			Credentials: Credentials{Binary: "piper"},
		},
	}
}

// Load reads the file at path, applies environment overrides from environ
// and validates the result. An empty path means DefaultPath. A missing file
// is not an error. A nil environ reads the process environment.
func Load(path string, environ map[string]string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}

	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 -- user-chosen config path
	switch {
	case err == nil:
		cfg.Services = nil
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if len(cfg.Services) == 0 {
			cfg.Services = DefaultServices()
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(environ); err != nil {
		return nil, err
	}
	cfg.normalize(environ)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides the scalar sections from SUBVOICE_* variables.
// Services are configured only through the file.
func (c *Config) applyEnv(environ map[string]string) error {
	sections := struct {
		Audio   *AudioProcessing
		Cache   *Cache
		Output  *Output
		Logging *Logging
	}{&c.Audio, &c.Cache, &c.Output, &c.Logging}

	if err := env.ParseWithOptions(&sections, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// normalize trims values and fills credentials from the environment.
func (c *Config) normalize(environ map[string]string) {
	for i := range c.Services {
		s := &c.Services[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		switch {
		case s.Type == tts.TypeOpenAI && s.Credentials.APIKey == "":
			s.Credentials.APIKey = environ[EnvOpenAIKey]
		case s.Type == tts.TypeGoogle && s.Credentials.KeyPath == "" && s.Credentials.APIKey == "":
			s.Credentials.KeyPath = environ[EnvGoogleCredentials]
		}
	}
	c.Audio.OverlapPolicy = strings.TrimSpace(c.Audio.OverlapPolicy)
	c.Audio.TimeStretch = strings.ToLower(strings.TrimSpace(c.Audio.TimeStretch))
	c.Output.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Output.Format), "."))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Cache.Directory = ExpandPath(c.Cache.Directory)
	c.Output.Dir = ExpandPath(c.Output.Dir)
}

// Policy returns the parsed overlap policy.
func (c *Config) Policy() (timeline.Policy, error) {
	return timeline.ParsePolicy(c.Audio.OverlapPolicy)
}

// OutputFormat returns the track format.
func (c *Config) OutputFormat() audio.Format {
	return audio.Format{SampleRate: c.Output.SampleRate, Channels: c.Output.Channels}
}

// CacheDir returns the cache directory, defaulting under the user cache dir.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Directory != "" {
		return c.Cache.Directory, nil
	}
	return cacheDir()
}

// CacheBytes returns the cache budget in bytes.
func (c *Config) CacheBytes() int64 { return int64(c.Cache.MaxSizeMB) << 20 }

// Service returns the service named name.
func (c *Config) Service(name string) (Service, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// Spec converts s into a backend spec with its emotion preset applied.
func (s Service) Spec() (tts.Spec, error) {
	v := tts.VoiceSettings{
		Voice:             s.Voice.Voice,
		Model:             s.Voice.Model,
		Language:          s.Voice.Language,
		RefAudioPath:      ExpandPath(s.Voice.RefAudioPath),
		PromptText:        s.Voice.PromptText,
		PromptLang:        s.Voice.PromptLang,
		Speed:             s.Voice.Speed,
		Pitch:             s.Voice.Pitch,
		TopK:              s.Voice.TopK,
		TopP:              s.Voice.TopP,
		Temperature:       s.Voice.Temperature,
		RepetitionPenalty: s.Voice.RepetitionPenalty,
		Seed:              s.Voice.Seed,
	}
	v, err := v.WithEmotion(s.Voice.Emotion)
	if err != nil {
		return tts.Spec{}, fmt.Errorf("service %s: %w", s.Name, err)
	}
	return tts.Spec{
		Name:      s.Name,
		Type:      s.Type,
		Priority:  s.Priority,
		Enabled:   s.IsEnabled(),
		APIKey:    s.Credentials.APIKey,
		APIURL:    s.Credentials.APIURL,
		Binary:    s.Credentials.Binary,
		ModelPath: ExpandPath(s.Credentials.ModelPath),
		KeyPath:   ExpandPath(s.Credentials.KeyPath),
		AutoStart: tts.ServerCommand{
			Command:        s.AutoStart.Command,
			Dir:            ExpandPath(s.AutoStart.Dir),
			StartupTimeout: time.Duration(s.AutoStart.StartupTimeout),
		},
		Voice:             v,
		RequestsPerSecond: s.RequestsPerSecond,
	}, nil
}

// Specs converts every service.
func (c *Config) Specs() ([]tts.Spec, error) {
	specs := make([]tts.Spec, 0, len(c.Services))
	for _, s := range c.Services {
		spec, err := s.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Marshal renders c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Init writes the commented sample configuration to path. An existing file
// is kept unless force is set.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w (use --force to overwrite)", path, ErrExists)
		}
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	// #nosec G306 -- config file with standard permissions
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
