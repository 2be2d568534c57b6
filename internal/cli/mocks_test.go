package cli

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/cache"
	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// testFormat keeps fake audio small: one sample per millisecond.
var testFormat = audio.Format{SampleRate: 1000, Channels: 1}

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc      func(ctx context.Context) (string, error)
	CheckVersionFunc func(ctx context.Context, ffmpegPath string)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	if m.CheckVersionFunc != nil {
		m.CheckVersionFunc(ctx, ffmpegPath)
	}
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func(path string) (*config.Config, error)

	mu        sync.Mutex
	loadCalls int
	paths     []string
}

func (m *mockConfigLoader) Load(path string) (*config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.paths = append(m.paths, path)
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(path)
	}
	return testConfig(), nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock BackendFactory + Backend
// ---------------------------------------------------------------------------

type mockBackend struct {
	name string

	// SynthesizeFunc defaults to one second of silence.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (audio.Buffer, error)
	HealthFunc     func(ctx context.Context) error

	mu     sync.Mutex
	texts  []string
	closed bool
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Synthesize(ctx context.Context, req tts.Request) (audio.Buffer, error) {
	m.mu.Lock()
	m.texts = append(m.texts, req.Text)
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return audio.Silence(testFormat, time.Second), nil
}

func (m *mockBackend) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func (m *mockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockBackend) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *mockBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockBackendFactory struct {
	// NewBackendFunc overrides the lookup in backends.
	NewBackendFunc func(spec tts.Spec) (tts.Backend, error)

	mu       sync.Mutex
	backends map[string]*mockBackend
	specs    []tts.Spec
}

func (m *mockBackendFactory) NewBackend(spec tts.Spec, _ *log.Logger) (tts.Backend, error) {
	m.mu.Lock()
	m.specs = append(m.specs, spec)
	m.mu.Unlock()

	if m.NewBackendFunc != nil {
		return m.NewBackendFunc(spec)
	}
	return m.backend(spec.Name), nil
}

// backend returns the mock for name, creating it on first use.
func (m *mockBackendFactory) backend(name string) *mockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backends == nil {
		m.backends = make(map[string]*mockBackend)
	}
	b, ok := m.backends[name]
	if !ok {
		b = &mockBackend{name: name}
		m.backends[name] = b
	}
	return b
}

func (m *mockBackendFactory) Specs() []tts.Spec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tts.Spec(nil), m.specs...)
}

// ---------------------------------------------------------------------------
// Mock CacheOpener + Store
// ---------------------------------------------------------------------------

type mockStore struct {
	mu      sync.Mutex
	entries map[string]audio.Buffer
	hits    int64
	misses  int64
	closed  bool
	cleared int
}

func newMockStore() *mockStore {
	return &mockStore{entries: make(map[string]audio.Buffer)}
}

func (s *mockStore) Get(_ context.Context, key string) (audio.Buffer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.entries[key]
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return buf, ok, nil
}

func (s *mockStore) Put(_ context.Context, key string, buf audio.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = buf
	return nil
}

func (s *mockStore) Stats(context.Context) (cache.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cache.Stats{
		Path:     "/cache/cache.db",
		Entries:  len(s.entries),
		Bytes:    2 << 20,
		MaxBytes: 8 << 20,
		Hits:     s.hits,
		Misses:   s.misses,
	}, nil
}

func (s *mockStore) Clear(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]audio.Buffer)
	s.cleared += n
	return n, nil
}

func (s *mockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type mockCacheOpener struct {
	OpenFunc func(dir string, maxBytes int64) (Store, error)

	mu    sync.Mutex
	store *mockStore
	dirs  []string
}

func (m *mockCacheOpener) Open(dir string, maxBytes int64) (Store, error) {
	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	if m.store == nil {
		m.store = newMockStore()
	}
	store := m.store
	m.mu.Unlock()

	if m.OpenFunc != nil {
		return m.OpenFunc(dir, maxBytes)
	}
	return store, nil
}

func (m *mockCacheOpener) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirs)
}

// ---------------------------------------------------------------------------
// Mock Encoder
// ---------------------------------------------------------------------------

type mockEncoder struct {
	EncodeFunc func(ctx context.Context, ffmpegPath string, buf audio.Buffer, dst string) error

	mu         sync.Mutex
	encoded    []string
	stretchers int
}

func (m *mockEncoder) Encode(ctx context.Context, ffmpegPath string, buf audio.Buffer, dst string) error {
	m.mu.Lock()
	m.encoded = append(m.encoded, dst)
	m.mu.Unlock()

	if m.EncodeFunc != nil {
		return m.EncodeFunc(ctx, ffmpegPath, buf, dst)
	}
	return writeFileAtomic(dst, []byte("encoded"), true)
}

func (m *mockEncoder) Stretcher(string) timeline.Stretcher {
	m.mu.Lock()
	m.stretchers++
	m.mu.Unlock()
	return timeline.NaiveStretcher{}
}

func (m *mockEncoder) Stretchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stretchers
}
