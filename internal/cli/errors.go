package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrFileNotFound indicates the specified input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")

	// ErrUnsupportedFormat indicates an output extension no exporter handles.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrUnknownService indicates --service names no configured service.
	ErrUnknownService = errors.New("unknown service")

	// ErrInvalidFlag indicates a flag value outside its accepted range.
	ErrInvalidFlag = errors.New("invalid flag value")
)
