package subtitle

import "errors"

// Sentinel errors for subtitle parsing.
var (
	// ErrNoCues indicates a file without any usable cue.
	ErrNoCues = errors.New("no subtitles found")

	// ErrMalformed indicates a block that is not valid SRT.
	ErrMalformed = errors.New("invalid SRT format")

	// ErrInvalidCue indicates a cue whose end is not after its start.
	ErrInvalidCue = errors.New("invalid cue")

	// ErrUndecodable indicates a file in none of the supported encodings.
	ErrUndecodable = errors.New("unable to decode subtitle file")

	// ErrNotSRT indicates a path without the .srt extension.
	ErrNotSRT = errors.New("not an SRT file")
)
