package tts

import (
	"fmt"
	"strings"
)

// VoiceSettings is an immutable snapshot of per-service voice parameters.
// The With* methods return modified copies; the receiver never changes.
type VoiceSettings struct {
	Voice    string
	Model    string
	Language string

	// Reference voice for cloning backends.
	RefAudioPath string
	PromptText   string
	PromptLang   string

	Speed             float64
	Pitch             float64 // semitones, Google only
	TopK              int
	TopP              float64
	Temperature       float64
	RepetitionPenalty float64
	Seed              int64

	Emotion string
}

// WithEmotion returns a copy with the named preset's sampling parameters
// applied. The empty name returns v unchanged.
func (v VoiceSettings) WithEmotion(name string) (VoiceSettings, error) {
	if name == "" {
		return v, nil
	}
	p, ok := LookupPreset(name)
	if !ok {
		return v, fmt.Errorf("%w: %q (available: %s)", ErrUnknownEmotion, name, strings.Join(PresetNames(), ", "))
	}
	v.Emotion = p.Name
	v.Temperature = p.Temperature
	v.TopK = p.TopK
	v.TopP = p.TopP
	v.Speed = p.Speed
	v.RepetitionPenalty = p.RepetitionPenalty
	return v, nil
}

// WithSeed returns a copy using seed.
func (v VoiceSettings) WithSeed(seed int64) VoiceSettings {
	v.Seed = seed
	return v
}

// WithSpeed returns a copy using speed.
func (v VoiceSettings) WithSpeed(speed float64) VoiceSettings {
	v.Speed = speed
	return v
}

// SpeedOr returns the configured speed, or def when unset.
func (v VoiceSettings) SpeedOr(def float64) float64 {
	if v.Speed <= 0 {
		return def
	}
	return v.Speed
}
