package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/audio"
)

// Progress describes one finished synthesis call.
type Progress struct {
	Backend  string
	Text     string
	Call     int
	Elapsed  time.Duration
	Duration time.Duration
	Err      error
}

// ProgressFunc receives progress events. It is called synchronously.
type ProgressFunc func(Progress)

// progressBackend reports every Synthesize call to fn.
type progressBackend struct {
	Backend
	fn    ProgressFunc
	now   func() time.Time
	calls int
}

// WithProgress wraps b so that fn observes each synthesis call.
func WithProgress(b Backend, fn ProgressFunc) Backend {
	if fn == nil {
		return b
	}
	return &progressBackend{Backend: b, fn: fn, now: time.Now}
}

func (p *progressBackend) Synthesize(ctx context.Context, req Request) (audio.Buffer, error) {
	p.calls++
	start := p.now()
	buf, err := p.Backend.Synthesize(ctx, req)
	p.fn(Progress{
		Backend:  p.Backend.Name(),
		Text:     req.Text,
		Call:     p.calls,
		Elapsed:  p.now().Sub(start),
		Duration: buf.Duration(),
		Err:      err,
	})
	return buf, err
}

// Store persists synthesized audio by key.
type Store interface {
	Get(ctx context.Context, key string) (audio.Buffer, bool, error)
	Put(ctx context.Context, key string, buf audio.Buffer) error
}

// CacheKey identifies audio by text, backend and emotion.
func CacheKey(text, backend, emotion string) string {
	h := sha256.New()
	for _, part := range []string{text, backend, emotion} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// cachedBackend serves repeated texts from a Store.
type cachedBackend struct {
	Backend
	store   Store
	emotion string
	logger  *log.Logger
}

// WithCache wraps b with store. Cache errors are logged and never fail a
// request. Reference requests always reach the backend so it can capture
// its reference audio.
func WithCache(b Backend, store Store, emotion string, logger *log.Logger) Backend {
	if store == nil {
		return b
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &cachedBackend{Backend: b, store: store, emotion: emotion, logger: logger}
}

func (c *cachedBackend) Synthesize(ctx context.Context, req Request) (audio.Buffer, error) {
	key := CacheKey(req.Text, c.Backend.Name(), c.emotion)

	if !req.Reference {
		buf, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("cache read failed", "backend", c.Backend.Name(), "err", err)
		case ok:
			c.logger.Debug("cache hit", "backend", c.Backend.Name(), "key", key[:12])
			return buf, nil
		}
	}

	buf, err := c.Backend.Synthesize(ctx, req)
	if err != nil {
		return buf, err
	}
	if err := c.store.Put(ctx, key, buf); err != nil {
		c.logger.Warn("cache write failed", "backend", c.Backend.Name(), "err", err)
	}
	return buf, nil
}
