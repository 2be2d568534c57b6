package tts_test

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/tts"
)

// mockSpeechClient implements the OpenAI speech client subset.
type mockSpeechClient struct {
	mu               sync.Mutex
	CreateSpeechFunc func(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
	ListModelsFunc   func(ctx context.Context) (openai.ModelsList, error)
	requests         []openai.CreateSpeechRequest
}

func (m *mockSpeechClient) CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.CreateSpeechFunc(ctx, req)
}

func (m *mockSpeechClient) ListModels(ctx context.Context) (openai.ModelsList, error) {
	if m.ListModelsFunc == nil {
		return openai.ModelsList{}, nil
	}
	return m.ListModelsFunc(ctx)
}

func (m *mockSpeechClient) Requests() []openai.CreateSpeechRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]openai.CreateSpeechRequest(nil), m.requests...)
}

// mockBackend implements tts.Backend with a configurable Synthesize.
type mockBackend struct {
	name           string
	SynthesizeFunc func(ctx context.Context, req tts.Request) (audio.Buffer, error)
	calls          []tts.Request
	closed         bool
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Synthesize(ctx context.Context, req tts.Request) (audio.Buffer, error) {
	m.calls = append(m.calls, req)
	return m.SynthesizeFunc(ctx, req)
}

func (m *mockBackend) Health(context.Context) error { return nil }

func (m *mockBackend) Close() error {
	m.closed = true
	return nil
}

// mockStore implements tts.Store in memory.
type mockStore struct {
	data   map[string]audio.Buffer
	GetErr error
	PutErr error
	puts   int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]audio.Buffer)}
}

func (s *mockStore) Get(_ context.Context, key string) (audio.Buffer, bool, error) {
	if s.GetErr != nil {
		return audio.Buffer{}, false, s.GetErr
	}
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *mockStore) Put(_ context.Context, key string, buf audio.Buffer) error {
	s.puts++
	if s.PutErr != nil {
		return s.PutErr
	}
	s.data[key] = buf
	return nil
}

// Compile-time interface verification.
var (
	_ tts.Backend = (*mockBackend)(nil)
	_ tts.Store   = (*mockStore)(nil)
)
