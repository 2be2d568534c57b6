package ffmpeg

import "errors"

// ErrNotFound indicates the ffmpeg binary is neither configured nor on PATH.
var ErrNotFound = errors.New("ffmpeg not found")

// ErrTimeout is returned when FFmpeg does not exit within the graceful shutdown timeout.
var ErrTimeout = errors.New("ffmpeg did not exit within timeout")

// ErrInvalidFactor indicates a non-positive time-stretch factor.
var ErrInvalidFactor = errors.New("invalid tempo factor")

// ErrUnsupportedFormat indicates an export format ffmpeg is not asked to produce.
var ErrUnsupportedFormat = errors.New("unsupported output format")
