package subtitle

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Validation thresholds.
const (
	MinDuration = 100 * time.Millisecond
	MaxDuration = 10 * time.Second
	MaxRunes    = 200
)

// WarningKind classifies a validation warning.
type WarningKind string

// Warning kinds.
const (
	WarnOverlap  WarningKind = "overlap"
	WarnShort    WarningKind = "short"
	WarnLong     WarningKind = "long"
	WarnLongText WarningKind = "long_text"
)

// Warning is a non-fatal problem with a cue.
type Warning struct {
	Index   int
	Kind    WarningKind
	Message string
}

func (w Warning) String() string { return w.Message }

// Validate reports overlapping cues, very short or long cues, and very long
// texts. Overlaps are reported against the next cue in file order.
func Validate(cues []Cue) []Warning {
	var warnings []Warning
	for i := 0; i+1 < len(cues); i++ {
		cur, next := cues[i], cues[i+1]
		if cur.End > next.Start {
			warnings = append(warnings, Warning{
				Index: cur.Index,
				Kind:  WarnOverlap,
				Message: fmt.Sprintf("overlapping subtitles: #%d ends at %s, but #%d starts at %s",
					cur.Index, Timestamp(cur.End), next.Index, Timestamp(next.Start)),
			})
		}
	}
	for _, c := range cues {
		switch d := c.Duration(); {
		case d < MinDuration:
			warnings = append(warnings, Warning{Index: c.Index, Kind: WarnShort,
				Message: fmt.Sprintf("very short subtitle #%d: %.2fs", c.Index, d.Seconds())})
		case d > MaxDuration:
			warnings = append(warnings, Warning{Index: c.Index, Kind: WarnLong,
				Message: fmt.Sprintf("very long subtitle #%d: %.2fs", c.Index, d.Seconds())})
		}
		if n := utf8.RuneCountInString(c.Text); n > MaxRunes {
			warnings = append(warnings, Warning{Index: c.Index, Kind: WarnLongText,
				Message: fmt.Sprintf("very long text in subtitle #%d: %d characters", c.Index, n)})
		}
	}
	return warnings
}

// Stats summarizes a cue list.
type Stats struct {
	Count           int
	Span            time.Duration // first start to last end
	SpeechTime      time.Duration // sum of cue windows
	AverageDuration time.Duration
	Runes           int
	AverageRunes    float64
	First           time.Duration
	Last            time.Duration
}

// Summarize computes Stats for cues.
func Summarize(cues []Cue) Stats {
	if len(cues) == 0 {
		return Stats{}
	}
	s := Stats{Count: len(cues), First: cues[0].Start, Last: LastEnd(cues)}
	for _, c := range cues {
		s.SpeechTime += c.Duration()
		s.Runes += utf8.RuneCountInString(c.Text)
	}
	s.Span = s.Last - s.First
	s.AverageDuration = s.SpeechTime / time.Duration(len(cues))
	s.AverageRunes = float64(s.Runes) / float64(len(cues))
	return s
}

// Preview returns the first n cues, or all of them when n <= 0.
func Preview(cues []Cue, n int) []Cue {
	if n <= 0 || n >= len(cues) {
		return cues
	}
	return cues[:n]
}
