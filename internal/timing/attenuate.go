package timing

import "strings"

// Attenuation levels. Higher levels strip more punctuation.
const (
	MinLevel = 1
	MaxLevel = 3
)

// Marks removed per level, longest pause first. Each level is a superset of
// the previous one; sentence-final marks are never removed.
var (
	longPauseMarks   = []string{"——", "—", "……", "…", "～～", "～"}
	mediumPauseMarks = []string{"、", "；", ";", "：", ":", "·"}
	shortPauseMarks  = []string{"，", ","}
)

// Marks returns the ordered list of substrings stripped at level.
// It returns nil for levels outside MinLevel..MaxLevel.
func Marks(level int) []string {
	if level < MinLevel || level > MaxLevel {
		return nil
	}
	marks := make([]string, 0, len(longPauseMarks)+len(mediumPauseMarks)+len(shortPauseMarks))
	marks = append(marks, longPauseMarks...)
	if level >= 2 {
		marks = append(marks, mediumPauseMarks...)
	}
	if level >= 3 {
		marks = append(marks, shortPauseMarks...)
	}
	return marks
}

// Attenuate strips the level's marks from text in list order.
// Levels outside MinLevel..MaxLevel return text unchanged.
func Attenuate(text string, level int) string {
	out := text
	for _, m := range Marks(level) {
		out = strings.ReplaceAll(out, m, "")
	}
	return out
}
