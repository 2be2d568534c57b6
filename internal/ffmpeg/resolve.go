package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
)

const (
	// binaryName is the base name of the ffmpeg binary.
	binaryName = "ffmpeg"

	// minFFmpegMajorVersion is the minimum supported ffmpeg version.
	// Older builds lack the chained atempo behavior used for stretching.
	minFFmpegMajorVersion = 4
)

// Environment variable for custom ffmpeg path.
const envFFmpegPath = "FFMPEG_PATH"

// ---------------------------------------------------------------------------
// Resolver - testable FFmpeg resolution with dependency injection
// ---------------------------------------------------------------------------

// Resolver finds the ffmpeg binary.
type Resolver struct {
	stat fileStatter
	env  envProvider
	goos string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFileStatter sets the filesystem existence check.
func WithFileStatter(s fileStatter) ResolverOption {
	return func(r *Resolver) { r.stat = s }
}

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithPlatform sets the target OS used for install instructions.
func WithPlatform(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		stat: osFileStatter{},
		env:  osEnvProvider{},
		goos: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds ffmpeg using the following precedence:
//  1. FFMPEG_PATH environment variable (error if set but invalid)
//  2. System PATH
func (r *Resolver) Resolve(_ context.Context) (string, error) {
	if envPath := r.env.Getenv(envFFmpegPath); envPath != "" {
		if _, err := r.stat.Stat(envPath); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found",
				ErrNotFound, envFFmpegPath, envPath)
		}
		return envPath, nil
	}

	if path, err := r.env.LookPath(binaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w\n\n%s", ErrNotFound, r.manualInstallInstructions())
}

// manualInstallInstructions returns platform-specific instructions.
func (r *Resolver) manualInstallInstructions() string {
	switch r.goos {
	case "darwin":
		return `To install FFmpeg:
  brew install ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	case "linux":
		return `To install FFmpeg:
  Ubuntu/Debian: sudo apt install ffmpeg
  Fedora:        sudo dnf install ffmpeg
  Arch:          sudo pacman -S ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	case "windows":
		return `To install FFmpeg:
  winget install ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg.exe.`
	default:
		return `To install FFmpeg, download from https://ffmpeg.org/download.html
Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	}
}

// ---------------------------------------------------------------------------
// Package-level functions
// ---------------------------------------------------------------------------

var (
	defaultResolver     *Resolver
	defaultResolverOnce sync.Once
)

func getDefaultResolver() *Resolver {
	defaultResolverOnce.Do(func() {
		defaultResolver = NewResolver()
	})
	return defaultResolver
}

// Resolve finds ffmpeg using the default resolver.
func Resolve(ctx context.Context) (string, error) {
	return getDefaultResolver().Resolve(ctx)
}

// ---------------------------------------------------------------------------
// VersionChecker
// ---------------------------------------------------------------------------

// VersionChecker verifies FFmpeg version requirements.
type VersionChecker struct {
	executor *Executor
	stderr   io.Writer
}

// VersionCheckerOption configures a VersionChecker.
type VersionCheckerOption func(*VersionChecker)

// WithVersionExecutor sets the executor for running FFmpeg.
func WithVersionExecutor(e *Executor) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.executor = e }
}

// WithVersionStderr sets the writer for warning messages.
func WithVersionStderr(w io.Writer) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.stderr = w }
}

// NewVersionChecker creates a VersionChecker with the given options.
func NewVersionChecker(opts ...VersionCheckerOption) *VersionChecker {
	vc := &VersionChecker{
		executor: getDefaultExecutor(),
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

// Check warns on stderr when ffmpeg is older than the supported major
// version. It returns false when the version could not be determined.
func (vc *VersionChecker) Check(ctx context.Context, ffmpegPath string) bool {
	output, err := vc.executor.RunOutput(ctx, ffmpegPath, []string{"-version"})
	if err != nil && output == "" {
		return false
	}

	first, _, _ := strings.Cut(output, "\n")
	if first == "" {
		return false
	}

	var major int
	if _, err := fmt.Sscanf(first, "ffmpeg version %d", &major); err != nil {
		// Git builds print "ffmpeg version n6.1.1".
		if _, err := fmt.Sscanf(first, "ffmpeg version n%d", &major); err != nil {
			return false
		}
	}

	if major < minFFmpegMajorVersion {
		fmt.Fprintf(vc.stderr, "Warning: ffmpeg version %d detected, version %d+ recommended\n",
			major, minFFmpegMajorVersion)
	}
	return true
}

// CheckVersion runs the default VersionChecker.
func CheckVersion(ctx context.Context, ffmpegPath string) {
	NewVersionChecker().Check(ctx, ffmpegPath)
}
