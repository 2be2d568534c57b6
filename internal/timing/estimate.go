// Package timing predicts how long a text takes to speak and shortens texts
// by stripping pause-inducing punctuation.
//
// Both operations are pure: they read nothing but their arguments and are
// safe for concurrent use.
package timing

import (
	"time"
	"unicode"
)

// Class is the character class used to score spoken duration.
type Class int

// Character classes, checked in this order.
const (
	ClassChinese Class = iota
	ClassLetter
	ClassDigit
	ClassSpace
	ClassPunctuation
	ClassOther
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassChinese:
		return "chinese"
	case ClassLetter:
		return "english"
	case ClassDigit:
		return "number"
	case ClassSpace:
		return "space"
	case ClassPunctuation:
		return "punctuation"
	case ClassOther:
		return "default"
	default:
		return "unknown"
	}
}

// Seconds per character, measured against GPT-SoVITS output.
var classSeconds = map[Class]float64{
	ClassChinese:     0.25,
	ClassLetter:      0.08,
	ClassDigit:       0.20,
	ClassSpace:       0.05,
	ClassPunctuation: 0.10,
	ClassOther:       0.20,
}

const (
	// basePause is added once per text.
	basePause = 0.1

	// mixedPenalty applies when at least two scripts are present.
	mixedPenalty = 1.1

	longTextRunes    = 50
	longTextFactor   = 0.95
	mediumTextRunes  = 30
	mediumTextFactor = 0.98
)

// ClassOf classifies a single rune.
func ClassOf(r rune) Class {
	switch {
	case isCJK(r):
		return ClassChinese
	case unicode.IsLetter(r):
		return ClassLetter
	case unicode.IsDigit(r):
		return ClassDigit
	case unicode.IsSpace(r):
		return ClassSpace
	case !unicode.IsLetter(r) && !unicode.IsNumber(r):
		return ClassPunctuation
	default:
		return ClassOther
	}
}

// Estimate returns the expected spoken duration of text in seconds.
// The result is deterministic and never negative; the empty string scores
// the base pause alone.
func Estimate(text string) float64 {
	var total float64
	n := 0
	for _, r := range text {
		total += classSeconds[ClassOf(r)]
		n++
	}

	// Long sentences are read slightly faster.
	switch {
	case n > longTextRunes:
		total *= longTextFactor
	case n > mediumTextRunes:
		total *= mediumTextFactor
	}

	if IsMixed(text) {
		total *= mixedPenalty
	}

	return total + basePause
}

// EstimateDuration is Estimate expressed as a time.Duration.
func EstimateDuration(text string) time.Duration {
	return time.Duration(Estimate(text) * float64(time.Second))
}

// IsMixed reports whether text contains at least two of: CJK ideographs,
// ASCII letters, digits.
func IsMixed(text string) bool {
	var hasCJK, hasLatin, hasDigit bool
	for _, r := range text {
		switch {
		case isCJK(r):
			hasCJK = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLatin = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	kinds := 0
	for _, b := range []bool{hasCJK, hasLatin, hasDigit} {
		if b {
			kinds++
		}
	}
	return kinds >= 2
}

// isCJK reports whether r is in the CJK Unified Ideographs block.
func isCJK(r rune) bool {
	return r >= '一' && r <= '鿿'
}
