package cache_test

// Notes:
// - Noise buffers do not compress, so their stored size equals their raw
//   PCM size and eviction budgets are exact.
// - A counting clock makes access order deterministic.

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/cache"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 1}

// noise returns frames of deterministic random samples.
func noise(t *testing.T, frames int, seed uint64) audio.Buffer {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed+1))
	s := make([]int16, frames)
	for i := range s {
		s[i] = int16(r.IntN(65536) - 32768)
	}
	b, err := audio.New(testFormat, s)
	if err != nil {
		t.Fatalf("audio.New() unexpected error: %v", err)
	}
	return b
}

// tickClock returns a clock advancing one second per call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func openCache(t *testing.T, dir string, maxBytes int64) *cache.Cache {
	t.Helper()
	c, err := cache.Open(dir, maxBytes)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	cache.SetClock(c, tickClock())
	return c
}

// ---------------------------------------------------------------------------
// Get / Put
// ---------------------------------------------------------------------------

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  func(t *testing.T) audio.Buffer
	}{
		{name: "compressible silence", buf: func(*testing.T) audio.Buffer {
			return audio.Silence(testFormat, 2*time.Second)
		}},
		{name: "incompressible noise", buf: func(t *testing.T) audio.Buffer { return noise(t, 4000, 1) }},
		{name: "tiny", buf: func(t *testing.T) audio.Buffer { return noise(t, 10, 2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := openCache(t, t.TempDir(), 0)
			ctx := context.Background()
			want := tt.buf(t)

			if err := c.Put(ctx, "k", want); err != nil {
				t.Fatalf("Put() unexpected error: %v", err)
			}
			got, ok, err := c.Get(ctx, "k")
			if err != nil || !ok {
				t.Fatalf("Get() = ok %v, err %v, want hit", ok, err)
			}
			if got.Format() != want.Format() {
				t.Errorf("format = %v, want %v", got.Format(), want.Format())
			}
			if !slices.Equal(got.Samples(), want.Samples()) {
				t.Error("samples differ after round trip")
			}
		})
	}
}

func TestCache_Miss(t *testing.T) {
	t.Parallel()

	c := openCache(t, t.TempDir(), 0)
	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil || ok {
		t.Errorf("Get() = ok %v, err %v, want miss", ok, err)
	}

	s, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() unexpected error: %v", err)
	}
	if s.Misses != 1 || s.Hits != 0 || s.HitRate() != 0 {
		t.Errorf("Stats() = %+v, want one miss", s)
	}
}

func TestCache_PutReplaces(t *testing.T) {
	t.Parallel()

	c := openCache(t, t.TempDir(), 0)
	ctx := context.Background()
	_ = c.Put(ctx, "k", noise(t, 100, 1))
	second := noise(t, 200, 2)
	if err := c.Put(ctx, "k", second); err != nil {
		t.Fatalf("Put() unexpected error: %v", err)
	}

	got, _, _ := c.Get(ctx, "k")
	if got.Frames() != 200 {
		t.Errorf("frames = %d, want 200", got.Frames())
	}
	s, _ := c.Stats(ctx)
	if s.Entries != 1 || s.Bytes != 400 {
		t.Errorf("Stats() = %+v, want 1 entry of 400 bytes", s)
	}
}

func TestCache_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	c, err := cache.Open(dir, 0)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	if err := c.Put(ctx, "k", noise(t, 50, 3)); err != nil {
		t.Fatalf("Put() unexpected error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	c2 := openCache(t, dir, 0)
	if _, ok, err := c2.Get(ctx, "k"); !ok || err != nil {
		t.Errorf("Get() after reopen = ok %v, err %v, want hit", ok, err)
	}
}

// ---------------------------------------------------------------------------
// Eviction
// ---------------------------------------------------------------------------

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	// Each entry is 500 frames, 1000 bytes; two fit.
	c := openCache(t, t.TempDir(), 2500)
	ctx := context.Background()

	_ = c.Put(ctx, "a", noise(t, 500, 1))
	_ = c.Put(ctx, "b", noise(t, 500, 2))
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatal("Get(a) missed before eviction")
	}
	if err := c.Put(ctx, "c", noise(t, 500, 3)); err != nil {
		t.Fatalf("Put(c) unexpected error: %v", err)
	}

	for key, want := range map[string]bool{"a": true, "b": false, "c": true} {
		if _, ok, _ := c.Get(ctx, key); ok != want {
			t.Errorf("Get(%s) hit = %v, want %v", key, ok, want)
		}
	}
	s, _ := c.Stats(ctx)
	if s.Bytes > 2500 {
		t.Errorf("Bytes = %d, want <= 2500", s.Bytes)
	}
}

func TestCache_TooLarge(t *testing.T) {
	t.Parallel()

	c := openCache(t, t.TempDir(), 100)
	err := c.Put(context.Background(), "k", noise(t, 500, 1))
	if !errors.Is(err, cache.ErrTooLarge) {
		t.Errorf("Put() error = %v, want ErrTooLarge", err)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := openCache(t, t.TempDir(), 0)
	ctx := context.Background()
	_ = c.Put(ctx, "a", noise(t, 10, 1))
	_ = c.Put(ctx, "b", noise(t, 10, 2))

	n, err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	s, _ := c.Stats(ctx)
	if s.Entries != 0 || s.Bytes != 0 {
		t.Errorf("Stats() after Clear = %+v, want empty", s)
	}
}

func TestOpen_LockedByAnotherHandle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_ = openCache(t, dir, 0)

	_, err := cache.Open(dir, 0)
	if !errors.Is(err, cache.ErrLocked) {
		t.Errorf("second Open() error = %v, want ErrLocked", err)
	}
}

func TestStats_HitRate(t *testing.T) {
	t.Parallel()

	s := cache.Stats{Hits: 3, Misses: 1}
	if got := s.HitRate(); got != 0.75 {
		t.Errorf("HitRate() = %v, want 0.75", got)
	}
}
