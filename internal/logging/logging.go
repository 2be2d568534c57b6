// Package logging builds the structured loggers shared by every stage.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// ErrInvalidLevel indicates an unknown level name.
var ErrInvalidLevel = errors.New("invalid log level")

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Prefix is printed before every message, e.g. the session id.
	Prefix string
	// Timestamps adds a time column. Debug level always has one.
	Timestamps bool
}

// ParseLevel maps a level name to a log.Level.
func ParseLevel(s string) (log.Level, error) {
	if s == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(s)
	if err != nil || lvl == log.FatalLevel {
		return 0, fmt.Errorf("%w: %q (use debug, info, warn or error)", ErrInvalidLevel, s)
	}
	return lvl, nil
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.Timestamps || lvl == log.DebugLevel,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OpenFile returns a debug-level logger appending to path, for runs that
// keep a log next to their output. The caller closes the returned file.
func OpenFile(path string) (*log.Logger, *os.File, error) {
	// #nosec G302 G304 -- user-chosen log path
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	l := log.NewWithOptions(f, log.Options{
		Level:           log.DebugLevel,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.LogfmtFormatter,
	})
	return l, f, nil
}
