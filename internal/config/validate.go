package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/alnah/go-subvoice/internal/ffmpeg"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// logLevels lists accepted logging.level values.
var logLevels = []string{"debug", "info", "warn", "error"}

// OutputFormats returns the accepted output.format values.
func OutputFormats() []string {
	return append([]string{"wav"}, ffmpeg.EncodeFormats()...)
}

// Validate reports every problem at once, joined under ErrInvalid.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			add("services[%d]: name is required", i)
		}
		if seen[s.Name] && s.Name != "" {
			add("service %s: duplicate name", label)
		}
		seen[s.Name] = true
		if !slices.Contains(tts.Types(), s.Type) {
			add("service %s: unknown type %q (use %s)", label, s.Type, strings.Join(tts.Types(), ", "))
		}
		if len(s.AutoStart.Command) > 0 && s.Type != tts.TypeGPTSoVITS {
			add("service %s: auto_start is only supported for %s", label, tts.TypeGPTSoVITS)
		}
		if s.AutoStart.StartupTimeout < 0 {
			add("service %s: auto_start.startup_timeout must not be negative", label)
		}
		if s.RequestsPerSecond < 0 {
			add("service %s: requests_per_second must not be negative", label)
		}
		if e := s.Voice.Emotion; e != "" {
			if _, ok := tts.LookupPreset(e); !ok {
				add("service %s: unknown emotion %q (use %s)", label, e, strings.Join(tts.PresetNames(), ", "))
			}
		}
	}

	if _, err := timeline.ParsePolicy(c.Audio.OverlapPolicy); err != nil {
		add("audio_processing.overlap_policy: %v", err)
	}
	if c.Audio.SpeedAdjustLimit < 1 {
		add("audio_processing.speed_adjust_limit must be at least 1, got %g", c.Audio.SpeedAdjustLimit)
	}
	if c.Audio.FadeDuration < 0 {
		add("audio_processing.fade_duration must not be negative")
	}
	if c.Audio.MaxRetries < 1 {
		add("audio_processing.max_retries must be at least 1, got %d", c.Audio.MaxRetries)
	}
	if c.Audio.TimeStretch != StretchFFmpeg && c.Audio.TimeStretch != StretchNaive {
		add("audio_processing.time_stretch: unknown %q (use %s or %s)", c.Audio.TimeStretch, StretchFFmpeg, StretchNaive)
	}

	if c.Cache.MaxSizeMB < 0 {
		add("cache.max_size_mb must not be negative")
	}

	if !slices.Contains(OutputFormats(), c.Output.Format) {
		add("output.format: unknown %q (use %s)", c.Output.Format, strings.Join(OutputFormats(), ", "))
	}
	if err := c.OutputFormat().Validate(); err != nil {
		add("output: %v", err)
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		add("logging.level: unknown %q (use %s)", c.Logging.Level, strings.Join(logLevels, ", "))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(problems, "\n  - "))
}
