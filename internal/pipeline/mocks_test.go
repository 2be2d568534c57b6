package pipeline_test

import (
	"context"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/pipeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// testFormat makes one frame equal one millisecond.
var testFormat = audio.Format{SampleRate: 1000, Channels: 1}

// fakeBackend returns silence whose length is chosen per request.
type fakeBackend struct {
	name      string
	DurFunc   func(req tts.Request) time.Duration
	err       error
	healthErr error
	closeErr  error
	onCall    func(req tts.Request)

	calls  []tts.Request
	closed bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Synthesize(_ context.Context, req tts.Request) (audio.Buffer, error) {
	f.calls = append(f.calls, req)
	if f.onCall != nil {
		f.onCall(req)
	}
	if f.err != nil {
		return audio.Buffer{}, f.err
	}
	return audio.Silence(testFormat, f.DurFunc(req)), nil
}

func (f *fakeBackend) Health(context.Context) error { return f.healthErr }

func (f *fakeBackend) Close() error {
	f.closed = true
	return f.closeErr
}

var _ tts.Backend = (*fakeBackend)(nil)

// fakeFactory hands out prepared backends by spec name.
type fakeFactory struct {
	backends map[string]*fakeBackend
	errs     map[string]error
	created  []string
}

func (f *fakeFactory) New(spec tts.Spec) (tts.Backend, error) {
	f.created = append(f.created, spec.Name)
	if err := f.errs[spec.Name]; err != nil {
		return nil, err
	}
	return f.backends[spec.Name], nil
}

var _ pipeline.BackendFactory = (*fakeFactory)(nil)

// fixed returns a DurFunc that always answers d.
func fixed(d time.Duration) func(tts.Request) time.Duration {
	return func(tts.Request) time.Duration { return d }
}

// countingBackend records how many times it was wrapped.
type countingBackend struct {
	tts.Backend
	synths *int
}

func (c countingBackend) Synthesize(ctx context.Context, req tts.Request) (audio.Buffer, error) {
	*c.synths++
	return c.Backend.Synthesize(ctx, req)
}
