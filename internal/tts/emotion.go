package tts

import "slices"

// Preset is a named set of sampling parameters conveying a speaking style.
type Preset struct {
	Name              string
	Description       string
	Temperature       float64
	TopK              int
	TopP              float64
	Speed             float64
	RepetitionPenalty float64
}

// DefaultEmotion is applied when none is requested.
const DefaultEmotion = "neutral"

var presets = []Preset{
	{Name: "neutral", Description: "clear, even broadcast style", Temperature: 0.3, TopK: 3, TopP: 0.7, Speed: 1.0, RepetitionPenalty: 1.35},
	{Name: "emphasis", Description: "serious and formal, for key content", Temperature: 0.2, TopK: 2, TopP: 0.5, Speed: 0.9, RepetitionPenalty: 1.4},
	{Name: "friendly", Description: "lively and warm", Temperature: 0.5, TopK: 5, TopP: 0.9, Speed: 1.1, RepetitionPenalty: 1.3},
	{Name: "professional", Description: "business formal", Temperature: 0.25, TopK: 3, TopP: 0.6, Speed: 0.95, RepetitionPenalty: 1.35},
	{Name: "storytelling", Description: "expressive narration", Temperature: 0.6, TopK: 6, TopP: 0.85, Speed: 0.95, RepetitionPenalty: 1.25},
	{Name: "news", Description: "objective with brisk rhythm", Temperature: 0.2, TopK: 2, TopP: 0.6, Speed: 1.05, RepetitionPenalty: 1.4},
}

// Presets returns all emotion presets in display order.
func Presets() []Preset {
	return slices.Clone(presets)
}

// PresetNames returns preset names in display order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}

// LookupPreset finds a preset by name.
func LookupPreset(name string) (Preset, bool) {
	i := slices.IndexFunc(presets, func(p Preset) bool { return p.Name == name })
	if i < 0 {
		return Preset{}, false
	}
	return presets[i], true
}
