package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/cache"
	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/ffmpeg"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Global flags, bound by the root command.
	ConfigPath string
	Debug      bool
	// LogFile, when set, receives a debug-level logfmt log instead of stderr.
	LogFile string

	// Factories for domain objects
	FFmpegResolver FFmpegResolver
	ConfigLoader   ConfigLoader
	BackendFactory BackendFactory
	CacheOpener    CacheOpener
	Encoder        Encoder
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads the configuration file at path with environment
// overrides applied. An empty path means the default location.
type ConfigLoader interface {
	Load(path string) (*config.Config, error)
}

// BackendFactory builds synthesis backends.
type BackendFactory interface {
	NewBackend(spec tts.Spec, logger *log.Logger) (tts.Backend, error)
}

// Store is the persistent audio cache as seen by the commands.
type Store interface {
	tts.Store
	Stats(ctx context.Context) (cache.Stats, error)
	Clear(ctx context.Context) (int, error)
	Close() error
}

// CacheOpener opens the audio cache.
type CacheOpener interface {
	Open(dir string, maxBytes int64) (Store, error)
}

// Encoder exports a track through ffmpeg and builds the pitch-preserving
// time stretcher.
type Encoder interface {
	Encode(ctx context.Context, ffmpegPath string, buf audio.Buffer, dst string) error
	Stretcher(ffmpegPath string) timeline.Stretcher
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithBackendFactory sets the backend factory.
func WithBackendFactory(f BackendFactory) EnvOption {
	return func(e *Env) {
		e.BackendFactory = f
	}
}

// WithCacheOpener sets the cache opener.
func WithCacheOpener(o CacheOpener) EnvOption {
	return func(e *Env) {
		e.CacheOpener = o
	}
}

// WithEncoder sets the ffmpeg encoder.
func WithEncoder(enc Encoder) EnvOption {
	return func(e *Env) {
		e.Encoder = enc
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		Getenv:         os.Getenv,
		Now:            time.Now,
		FFmpegResolver: &defaultFFmpegResolver{},
		ConfigLoader:   &defaultConfigLoader{},
		BackendFactory: &defaultBackendFactory{},
		CacheOpener:    &defaultCacheOpener{},
		Encoder:        &defaultEncoder{executor: ffmpeg.NewExecutor()},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.CheckVersion(ctx, ffmpegPath)
}

// defaultConfigLoader implements ConfigLoader using the config package and
// the process environment.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load(path string) (*config.Config, error) {
	return config.Load(path, nil)
}

// defaultBackendFactory implements BackendFactory using the tts package.
type defaultBackendFactory struct{}

func (defaultBackendFactory) NewBackend(spec tts.Spec, logger *log.Logger) (tts.Backend, error) {
	return tts.NewFactory(tts.WithLogger(logger)).New(spec)
}

// defaultCacheOpener implements CacheOpener using the sqlite cache.
type defaultCacheOpener struct{}

func (defaultCacheOpener) Open(dir string, maxBytes int64) (Store, error) {
	c, err := cache.Open(dir, maxBytes)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// defaultEncoder implements Encoder using an ffmpeg Executor.
type defaultEncoder struct {
	executor *ffmpeg.Executor
}

func (e *defaultEncoder) Encode(ctx context.Context, ffmpegPath string, buf audio.Buffer, dst string) error {
	return e.executor.Encode(ctx, ffmpegPath, buf, dst)
}

func (e *defaultEncoder) Stretcher(ffmpegPath string) timeline.Stretcher {
	return ffmpeg.NewStretcher(ffmpegPath, e.executor)
}

// Compile-time interface verification.
var (
	_ FFmpegResolver = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader   = (*defaultConfigLoader)(nil)
	_ BackendFactory = (*defaultBackendFactory)(nil)
	_ CacheOpener    = (*defaultCacheOpener)(nil)
	_ Encoder        = (*defaultEncoder)(nil)
	_ Store          = (*cache.Cache)(nil)
)
