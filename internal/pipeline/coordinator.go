// Package pipeline converts a cue list into one track, escalating to the
// next backend when a cue cannot be made short enough.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/subtitle"
	"github.com/alnah/go-subvoice/internal/synth"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// BackendFactory builds a backend from its spec.
type BackendFactory interface {
	New(spec tts.Spec) (tts.Backend, error)
}

// EventKind identifies a progress event.
type EventKind int

// Event kinds.
const (
	EventBackendStart EventKind = iota
	EventBackendFailed
	EventCueDone
)

// Event reports run progress to the caller.
type Event struct {
	Kind    EventKind
	Backend string
	Cue     int // 1-based position in the cue list
	Total   int
	Err     error
}

// Result is the outcome of a run.
type Result struct {
	Track      audio.Buffer
	Backend    string
	Processing synth.Statistics
	Overlap    timeline.OverlapStatistics
	// Failed lists backends abandoned before Backend, in order.
	Failed []string
	// Cues is the number of cues placed on the track.
	Cues int
	// Partial is set when the run was cancelled between cues; Track then
	// holds the cues finished so far.
	Partial bool
	Elapsed time.Duration
}

// Coordinator drives a whole-file conversion against one backend at a
// time. It is not safe for concurrent use; run one Coordinator per file.
type Coordinator struct {
	factory      BackendFactory
	specs        []tts.Spec
	controller   *synth.Controller
	assembler    *timeline.Assembler
	useNextStart bool
	decorate     func(tts.Backend) tts.Backend
	onEvent      func(Event)
	logger       *log.Logger
	now          func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithController sets the per-cue retry controller.
func WithController(c *synth.Controller) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.controller = c
		}
	}
}

// WithNextStart limits each cue to the next cue's start as well as its own
// window during overlap correction.
func WithNextStart(enabled bool) Option {
	return func(co *Coordinator) { co.useNextStart = enabled }
}

// WithDecorator wraps every backend after construction, e.g. with a cache.
func WithDecorator(fn func(tts.Backend) tts.Backend) Option {
	return func(co *Coordinator) { co.decorate = fn }
}

// WithEvents sets a synchronous progress callback.
func WithEvents(fn func(Event)) Option {
	return func(co *Coordinator) { co.onEvent = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// New returns a Coordinator over the enabled specs, tried in ascending
// priority order. Specs with equal priority keep their given order.
func New(factory BackendFactory, specs []tts.Spec, assembler *timeline.Assembler, opts ...Option) (*Coordinator, error) {
	var enabled []tts.Spec
	for _, s := range specs {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoBackends
	}
	slices.SortStableFunc(enabled, func(a, b tts.Spec) int { return a.Priority - b.Priority })

	c := &Coordinator{
		factory:    factory,
		specs:      enabled,
		controller: synth.New(),
		assembler:  assembler,
		onEvent:    func(Event) {},
		logger:     log.New(io.Discard),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.onEvent == nil {
		c.onEvent = func(Event) {}
	}
	return c, nil
}

// Order returns the backend names in the order they will be tried.
func (c *Coordinator) Order() []string {
	names := make([]string, len(c.specs))
	for i, s := range c.specs {
		names[i] = s.Name
	}
	return names
}

// Run synthesizes cues into one track. A backend that cannot fit some cue
// is abandoned and the whole run restarts on the next backend. Permanent
// backend errors abort the run. When ctx is cancelled between cues, Run
// returns the partial result together with the context error.
func (c *Coordinator) Run(ctx context.Context, cues []subtitle.Cue) (*Result, error) {
	if len(cues) == 0 {
		return nil, subtitle.ErrNoCues
	}
	started := c.now()

	var failed []string
	var lastErr error
	for _, spec := range c.specs {
		res, err := c.runBackend(ctx, spec, cues)
		if err == nil || res != nil && res.Partial {
			res.Failed = failed
			res.Elapsed = c.now().Sub(started)
			return res, err
		}

		if !escalates(err) {
			return nil, err
		}
		failed = append(failed, spec.Name)
		lastErr = err
		c.onEvent(Event{Kind: EventBackendFailed, Backend: spec.Name, Err: err})
		c.logger.Warn("abandoning backend", "backend", spec.Name, "err", err)
	}
	return nil, fmt.Errorf("%w (tried %v): %w", ErrBackendsExhausted, failed, lastErr)
}

// escalates reports whether err makes the current backend unavailable for
// the rest of the run rather than aborting it. Overlength audio, a failed
// health check and transient faults that outlived their retry budget move on
// to the next backend; setup defects do not.
func escalates(err error) bool {
	if errors.Is(err, context.Canceled) || apierr.IsPermanent(err) {
		return false
	}
	return errors.Is(err, synth.ErrAudioTooLong) ||
		errors.Is(err, ErrUnhealthy) ||
		apierr.IsTransient(err)
}

// runBackend performs one complete attempt with spec. The backend is
// closed on every path.
func (c *Coordinator) runBackend(ctx context.Context, spec tts.Spec, cues []subtitle.Cue) (_ *Result, err error) {
	b, err := c.factory.New(spec)
	if err != nil {
		return nil, fmt.Errorf("create backend %s: %w", spec.Name, err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			c.logger.Warn("closing backend", "backend", spec.Name, "err", cerr)
		}
	}()

	if err := b.Health(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if c.decorate != nil {
		b = c.decorate(b)
	}

	c.controller.Reset()
	c.assembler.Reset()
	c.onEvent(Event{Kind: EventBackendStart, Backend: spec.Name, Total: len(cues)})
	c.logger.Info("starting backend", "backend", spec.Name, "cues", len(cues))

	for i, cue := range cues {
		if err := ctx.Err(); err != nil {
			return c.partial(spec.Name, cues[:i], err)
		}

		buf, err := c.controller.SynthesizeCue(ctx, b, synth.Job{
			Index:  cue.Index,
			Text:   cue.Text,
			Target: cue.Duration(),
			First:  i == 0,
		})
		if err != nil {
			if ctx.Err() != nil {
				return c.partial(spec.Name, cues[:i], ctx.Err())
			}
			return nil, fmt.Errorf("cue %d on %s: %w", cue.Index, spec.Name, err)
		}

		var next *time.Duration
		if c.useNextStart && i+1 < len(cues) {
			n := cues[i+1].Start
			next = &n
		}
		buf, err = c.assembler.Correct(ctx, buf, cue.Start, cue.End, next)
		if err != nil {
			if ctx.Err() != nil {
				return c.partial(spec.Name, cues[:i], ctx.Err())
			}
			return nil, fmt.Errorf("cue %d: %w", cue.Index, err)
		}
		if err := c.assembler.Add(cue.Start, buf); err != nil {
			return nil, fmt.Errorf("cue %d: %w", cue.Index, err)
		}
		c.onEvent(Event{Kind: EventCueDone, Backend: spec.Name, Cue: i + 1, Total: len(cues)})
	}

	track, err := c.assembler.Assemble(subtitle.LastEnd(cues))
	if err != nil {
		return nil, err
	}
	return c.result(spec.Name, track, len(cues)), nil
}

// partial assembles what finished before cancellation.
func (c *Coordinator) partial(backend string, done []subtitle.Cue, cause error) (*Result, error) {
	track, err := c.assembler.Assemble(subtitle.LastEnd(done))
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	res := c.result(backend, track, len(done))
	res.Partial = true
	return res, cause
}

func (c *Coordinator) result(backend string, track audio.Buffer, n int) *Result {
	return &Result{
		Track:      track,
		Backend:    backend,
		Processing: c.controller.Stats(),
		Overlap:    c.assembler.Stats(),
		Cues:       n,
	}
}
