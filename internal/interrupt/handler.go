// Package interrupt turns Ctrl+C into a two-step decision: the first press
// stops the conversion between cues, a second press within the window
// discards the partial track.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Behavior is the user's decision after a conversion was stopped.
type Behavior int

const (
	// ExportPartial keeps the cues finished so far and writes them out.
	ExportPartial Behavior = iota
	// Discard drops the partial track.
	Discard
)

// String returns the string representation of the Behavior.
func (b Behavior) String() string {
	switch b {
	case ExportPartial:
		return "export-partial"
	case Discard:
		return "discard"
	default:
		return fmt.Sprintf("Behavior(%d)", b)
	}
}

// DefaultWindow is how long a second Ctrl+C still counts as a discard.
const DefaultWindow = 2 * time.Second

// discardMessage is printed when a second Ctrl+C discards the run.
const discardMessage = "Discarding partial track."

// Handler tracks Ctrl+C presses for one conversion. The first press cancels
// the context returned with it, so the coordinator stops at the next cue
// boundary. A press within the window after that marks the run discarded.
type Handler struct {
	mu      sync.Mutex
	first   time.Time
	stopped bool

	cancel  context.CancelFunc
	stop    chan struct{}
	discard chan struct{}
	once    sync.Once

	window time.Duration
	now    func() time.Time
	stderr io.Writer
}

// Options holds injectable dependencies for testing.
type Options struct {
	// SigCh delivers interrupts. Nil means no signal is ever received.
	SigCh <-chan os.Signal
	// Window overrides DefaultWindow.
	Window time.Duration
	Now    func() time.Time
	// Stderr receives user-facing messages and must tolerate writes from
	// the listener goroutine.
	Stderr io.Writer
}

// NewHandler creates a handler that listens for SIGINT and SIGTERM.
// The returned context is cancelled on the first interrupt.
func NewHandler(parent context.Context) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return NewHandlerWithOptions(parent, Options{SigCh: sigCh})
}

// NewHandlerWithOptions creates a handler with injectable dependencies.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancel:  cancel,
		stop:    make(chan struct{}),
		discard: make(chan struct{}),
		window:  opts.Window,
		now:     opts.Now,
		stderr:  opts.Stderr,
	}
	if h.window <= 0 {
		h.window = DefaultWindow
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}
	return h, ctx
}

// Window returns the discard window.
func (h *Handler) Window() time.Duration { return h.window }

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.stop:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}
			h.press()
		}
	}
}

// press records one interrupt.
func (h *Handler) press() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	now := h.now()
	if h.first.IsZero() {
		h.first = now
		h.cancel()
		return
	}
	if now.Sub(h.first) <= h.window {
		h.once.Do(func() {
			fmt.Fprintln(h.stderr, "\n"+discardMessage)
			close(h.discard)
		})
	}
}

// WasInterrupted reports whether at least one interrupt was received.
func (h *Handler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.first.IsZero()
}

// Discarded reports whether a second interrupt arrived within the window.
func (h *Handler) Discarded() bool {
	select {
	case <-h.discard:
		return true
	default:
		return false
	}
}

// WaitForDecision waits out the rest of the window and returns Discard if
// a second interrupt arrives meanwhile, ExportPartial otherwise. prompt is
// printed while waiting. Without a prior interrupt it returns at once.
func (h *Handler) WaitForDecision(prompt string) Behavior {
	if h.Discarded() {
		return Discard
	}
	h.mu.Lock()
	first := h.first
	h.mu.Unlock()
	if first.IsZero() {
		return ExportPartial
	}

	remaining := h.window - h.now().Sub(first)
	if remaining <= 0 {
		return ExportPartial
	}
	fmt.Fprintln(h.stderr, prompt)

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-h.discard:
		return Discard
	case <-timer.C:
		return ExportPartial
	}
}

// Stop releases the signal subscription. It is safe to call twice.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.stop)
}
