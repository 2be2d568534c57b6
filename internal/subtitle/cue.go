// Package subtitle reads SRT files into timed cues.
package subtitle

import (
	"fmt"
	"time"
)

// Cue is one subtitle entry. End is always after Start and Text is never
// empty for cues returned by Parse.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Duration returns the cue window.
func (c Cue) Duration() time.Duration { return c.End - c.Start }

// String renders the cue as "#3 00:00:01.500 → 00:00:03.000 text".
func (c Cue) String() string {
	return fmt.Sprintf("#%d %s → %s %s", c.Index, Timestamp(c.Start), Timestamp(c.End), c.Text)
}

// Timestamp formats d as HH:MM:SS.mmm.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// LastEnd returns the latest end time among cues.
func LastEnd(cues []Cue) time.Duration {
	var end time.Duration
	for _, c := range cues {
		end = max(end, c.End)
	}
	return end
}
