package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/tts"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpegResolver *mockFFmpegResolver
	configLoader   *mockConfigLoader
	backends       *mockBackendFactory
	cacheOpener    *mockCacheOpener
	encoder        *mockEncoder
	stdout         *syncBuffer
	stderr         *syncBuffer
}

func newTestMocks() *testMocks {
	return &testMocks{
		ffmpegResolver: &mockFFmpegResolver{},
		configLoader:   &mockConfigLoader{},
		backends:       &mockBackendFactory{},
		cacheOpener:    &mockCacheOpener{},
		encoder:        &mockEncoder{},
		stdout:         &syncBuffer{},
		stderr:         &syncBuffer{},
	}
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

// testEnvOption configures testEnv.
type testEnvOption func(*testMocks)

// withConfig makes the config loader return a fresh copy of cfg built by fn
// on every call.
func withConfig(fn func(*config.Config)) testEnvOption {
	return func(m *testMocks) {
		m.configLoader.LoadFunc = func(string) (*config.Config, error) {
			cfg := testConfig()
			fn(cfg)
			return cfg, nil
		}
	}
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env and the mocks for assertions.
func testEnv(opts ...testEnvOption) (*Env, *testMocks) {
	mocks := newTestMocks()
	for _, opt := range opts {
		opt(mocks)
	}

	env := &Env{
		Stdout:         mocks.stdout,
		Stderr:         mocks.stderr,
		Getenv:         func(string) string { return "" },
		Now:            fixedTime(time.Date(2026, 1, 26, 14, 30, 52, 0, time.UTC)),
		FFmpegResolver: mocks.ffmpegResolver,
		ConfigLoader:   mocks.configLoader,
		BackendFactory: mocks.backends,
		CacheOpener:    mocks.cacheOpener,
		Encoder:        mocks.encoder,
	}

	return env, mocks
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fixedTime returns a function that always returns the given time.
func fixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// testConfig returns a two-service configuration producing small tracks:
// "primary" (openai) then "backup" (piper), naive stretching, cache on.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Services = []config.Service{
		{Name: "primary", Type: tts.TypeOpenAI, Priority: 1, Voice: config.Voice{Voice: "alloy", Model: "tts-1"}},
		{Name: "backup", Type: tts.TypePiper, Priority: 2},
	}
	cfg.Audio.TimeStretch = config.StretchNaive
	cfg.Output.SampleRate = testFormat.SampleRate
	cfg.Output.Channels = testFormat.Channels
	cfg.Cache.Directory = "/cache"
	return &cfg
}

// threeCues is a 5s subtitle file with three one-second cues.
const threeCues = `1
00:00:00,000 --> 00:00:01,000
Hello there.

2
00:00:02,000 --> 00:00:03,000
How are you?

3
00:00:04,000 --> 00:00:05,000
Fine, thanks.
`

// writeSRT writes content to dir/name and returns the path.
func writeSRT(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// testCmd returns a command carrying ctx, as cobra passes to RunE.
func testCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	return cmd
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
