// Package timeline fits synthesized cues into their subtitle windows and
// concatenates them into one track.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/audio"
)

// Defaults.
const (
	DefaultSpeedLimit   = 1.5
	DefaultFadeDuration = 50 * time.Millisecond
)

// Stretcher changes tempo without changing duration semantics: the result
// of Stretch(buf, f) lasts about buf.Duration()/f.
type Stretcher interface {
	Stretch(ctx context.Context, buf audio.Buffer, factor float64) (audio.Buffer, error)
}

// NaiveStretcher resamples by dropping or repeating frames. Pitch rises
// with speed.
type NaiveStretcher struct{}

// Stretch implements Stretcher.
func (NaiveStretcher) Stretch(_ context.Context, buf audio.Buffer, factor float64) (audio.Buffer, error) {
	return buf.Speedup(factor), nil
}

var _ Stretcher = NaiveStretcher{}

// OverlapStatistics accumulate over one run and reset on backend swap.
type OverlapStatistics struct {
	TotalOverlaps     int
	SpeedAdjusted     int
	Truncated         int
	WarnedOnly        int
	MaxSpeedFactor    float64
	TotalTimeAdjusted time.Duration
}

// segment is one placed cue awaiting concatenation.
type segment struct {
	start time.Duration
	buf   audio.Buffer
}

// Assembler corrects overlaps and builds the final track. It is not safe
// for concurrent use.
type Assembler struct {
	format     audio.Format
	policy     Policy
	speedLimit float64
	fade       time.Duration
	stretcher  Stretcher
	logger     *log.Logger

	segments []segment
	stats    OverlapStatistics
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithPolicy sets the overlap policy.
func WithPolicy(p Policy) Option {
	return func(a *Assembler) { a.policy = p }
}

// WithSpeedLimit sets the largest speed factor SpeedAdjust applies.
func WithSpeedLimit(limit float64) Option {
	return func(a *Assembler) {
		if limit >= 1 {
			a.speedLimit = limit
		}
	}
}

// WithFade sets the fade-out applied at truncation points. Zero disables it.
func WithFade(d time.Duration) Option {
	return func(a *Assembler) {
		if d >= 0 {
			a.fade = d
		}
	}
}

// WithStretcher sets the time-stretch implementation.
func WithStretcher(s Stretcher) Option {
	return func(a *Assembler) {
		if s != nil {
			a.stretcher = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// New returns an Assembler producing tracks in format f.
func New(f audio.Format, opts ...Option) (*Assembler, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("output format: %w", err)
	}
	a := &Assembler{
		format:     f,
		policy:     SpeedAdjust,
		speedLimit: DefaultSpeedLimit,
		fade:       DefaultFadeDuration,
		stretcher:  NaiveStretcher{},
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Format returns the output format.
func (a *Assembler) Format() audio.Format { return a.format }

// Stats returns a snapshot of the overlap statistics.
func (a *Assembler) Stats() OverlapStatistics { return a.stats }

// Len returns the number of placed segments.
func (a *Assembler) Len() int { return len(a.segments) }

// Reset discards all placed segments and statistics.
func (a *Assembler) Reset() {
	a.segments = nil
	a.stats = OverlapStatistics{}
}

// Available returns the time a cue may occupy: its own window, further
// limited by the next cue's start when next is not nil.
func Available(start, end time.Duration, next *time.Duration) time.Duration {
	avail := end - start
	if next != nil {
		avail = min(avail, *next-start)
	}
	return avail
}

// Correct fits buf into Available(start, end, next) according to the
// policy. Audio that already fits is returned unchanged.
func (a *Assembler) Correct(ctx context.Context, buf audio.Buffer, start, end time.Duration, next *time.Duration) (audio.Buffer, error) {
	avail := Available(start, end, next)
	dur := buf.Duration()
	if dur <= avail {
		return buf, nil
	}

	overlap := dur - avail
	a.stats.TotalOverlaps++
	a.logger.Warn("audio overlaps next cue",
		"start", start, "audio", dur, "available", avail, "overlap", overlap, "policy", a.policy)

	if avail <= 0 {
		// Next cue starts at or before this one; only cutting can help.
		if a.policy == WarnOnly {
			a.stats.WarnedOnly++
			return buf, nil
		}
		a.stats.Truncated++
		return buf.Truncate(0), nil
	}

	switch a.policy {
	case SpeedAdjust:
		factor := float64(dur) / float64(avail)
		if factor > a.speedLimit {
			a.logger.Info("speed factor exceeds limit, truncating",
				"factor", fmt.Sprintf("%.2f", factor), "limit", a.speedLimit)
			a.stats.Truncated++
			return a.truncate(buf, avail), nil
		}
		out, err := a.stretch(ctx, buf, factor)
		if err != nil {
			return audio.Buffer{}, err
		}
		// Stretchers round; never let the result exceed the window.
		out = out.Truncate(avail)
		a.stats.SpeedAdjusted++
		a.stats.MaxSpeedFactor = max(a.stats.MaxSpeedFactor, factor)
		a.stats.TotalTimeAdjusted += overlap
		a.logger.Debug("applied speed adjustment", "factor", fmt.Sprintf("%.2f", factor))
		return out, nil
	case Truncate:
		a.stats.Truncated++
		return a.truncate(buf, avail), nil
	default:
		a.stats.WarnedOnly++
		return buf, nil
	}
}

// stretch uses the configured stretcher and falls back to the naive one
// when it fails for any reason other than cancellation.
func (a *Assembler) stretch(ctx context.Context, buf audio.Buffer, factor float64) (audio.Buffer, error) {
	out, err := a.stretcher.Stretch(ctx, buf, factor)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return audio.Buffer{}, err
	}
	a.logger.Warn("time stretch failed, using naive resample", "err", err)
	return buf.Speedup(factor), nil
}

func (a *Assembler) truncate(buf audio.Buffer, d time.Duration) audio.Buffer {
	out := buf.Truncate(d)
	if a.fade > 0 && out.Duration() > a.fade {
		out = out.FadeOut(a.fade)
	}
	return out
}

// Add places buf at start. The buffer is converted to the output format.
func (a *Assembler) Add(start time.Duration, buf audio.Buffer) error {
	conv, err := buf.Convert(a.format)
	if err != nil {
		return fmt.Errorf("segment at %v: %w", start, err)
	}
	a.segments = append(a.segments, segment{start: start, buf: conv})
	return nil
}

// Assemble concatenates the placed segments in start order, filling gaps
// with silence, and pads the track to lastEnd. A segment that starts
// before the previous one has finished is appended directly, so playback
// drifts later than its nominal time.
func (a *Assembler) Assemble(lastEnd time.Duration) (audio.Buffer, error) {
	sorted := make([]segment, len(a.segments))
	copy(sorted, a.segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	parts := make([]audio.Buffer, 0, 2*len(sorted)+1)
	var cursor time.Duration
	for _, s := range sorted {
		switch {
		case s.start > cursor:
			parts = append(parts, audio.Silence(a.format, s.start-cursor))
		case s.start < cursor:
			a.logger.Warn("segment starts before previous one ends",
				"start", s.start, "cursor", cursor, "drift", cursor-s.start)
		}
		parts = append(parts, s.buf)
		cursor = max(cursor, s.start) + s.buf.Duration()
	}

	track, err := audio.Concat(parts...)
	if err != nil {
		return audio.Buffer{}, err
	}
	if track.IsEmpty() {
		track = audio.Silence(a.format, 0)
	}
	return track.PadTo(lastEnd), nil
}
