// Package synth synthesizes one subtitle cue at a time, shortening the text
// by punctuation attenuation until the audio fits the cue window.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/audio"
	"github.com/alnah/go-subvoice/internal/timing"
	"github.com/alnah/go-subvoice/internal/tts"
)

// Default controller parameters.
const (
	DefaultMaxRetries     = 3
	DefaultRetryThreshold = 1.5
	DefaultWarnThreshold  = 1.2
	defaultErrorDelay     = time.Second
)

// Synthesizer is the part of tts.Backend the controller calls.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req tts.Request) (audio.Buffer, error)
}

// Job is one cue to synthesize.
type Job struct {
	Index  int
	Text   string
	Target time.Duration
	// First marks the first cue of a run. Its unmodified attempt is sent
	// as a reference request.
	First bool
}

// Statistics accumulate over one run and reset on backend swap.
type Statistics struct {
	TotalSegments        int
	TextOptimized        int
	OverDuration         int
	MaxOptimizationLevel int
}

// Controller runs the per-cue retry loop and keeps run statistics.
// It is not safe for concurrent use.
type Controller struct {
	maxRetries     int
	retryThreshold float64
	warnThreshold  float64
	errorDelay     time.Duration
	logger         *log.Logger

	stats Statistics
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxRetries sets the number of synthesis attempts per cue.
func WithMaxRetries(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithThresholds sets the ratio above which a cue is retried and the ratio
// above which an accepted cue counts as over duration.
func WithThresholds(retry, warn float64) Option {
	return func(c *Controller) {
		if retry > 0 {
			c.retryThreshold = retry
		}
		if warn > 0 {
			c.warnThreshold = warn
		}
	}
}

// WithErrorDelay sets the pause before retrying after a backend error.
func WithErrorDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.errorDelay = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Controller with default thresholds.
func New(opts ...Option) *Controller {
	c := &Controller{
		maxRetries:     DefaultMaxRetries,
		retryThreshold: DefaultRetryThreshold,
		warnThreshold:  DefaultWarnThreshold,
		errorDelay:     defaultErrorDelay,
		logger:         log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns a snapshot of the run statistics.
func (c *Controller) Stats() Statistics { return c.stats }

// Reset clears the run statistics.
func (c *Controller) Reset() { c.stats = Statistics{} }

// SynthesizeCue synthesizes job.Text with b. Attempt 0 uses the text as
// is; attempt k uses timing.Attenuate(text, k). Audio up to the retry
// threshold times job.Target is accepted. When the last attempt is still
// too long, the error is an *AudioTooLongError. Backend errors consume
// attempts like overlong audio; permanent errors and cancellation return
// immediately.
func (c *Controller) SynthesizeCue(ctx context.Context, b Synthesizer, job Job) (audio.Buffer, error) {
	if job.Target <= 0 {
		return audio.Buffer{}, fmt.Errorf("cue %d: %w", job.Index, ErrInvalidTarget)
	}

	estimated := timing.EstimateDuration(job.Text)
	var last time.Duration

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		text := job.Text
		if attempt > 0 {
			text = timing.Attenuate(job.Text, attempt)
			c.logger.Info("retrying with attenuated text", "cue", job.Index, "level", attempt)
		}
		c.logger.Debug("synthesizing cue",
			"cue", job.Index, "runes", len([]rune(text)), "estimated", estimated,
			"target", job.Target, "attempt", attempt)

		buf, err := b.Synthesize(ctx, tts.Request{Text: text, Reference: job.First && attempt == 0})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || apierr.IsPermanent(err) {
				return audio.Buffer{}, err
			}
			if attempt == c.maxRetries-1 {
				return audio.Buffer{}, err
			}
			c.logger.Warn("synthesis failed, retrying", "backend", b.Name(), "cue", job.Index, "attempt", attempt, "err", err)
			if err := sleep(ctx, c.errorDelay); err != nil {
				return audio.Buffer{}, err
			}
			continue
		}

		last = buf.Duration()
		ratio := float64(last) / float64(job.Target)
		c.logger.Debug("synthesized cue", "cue", job.Index, "actual", last, "ratio", fmt.Sprintf("%.2f", ratio))

		if ratio > c.retryThreshold {
			if attempt < c.maxRetries-1 {
				c.logger.Warn("audio too long, retrying",
					"cue", job.Index, "actual", last, "target", job.Target, "ratio", fmt.Sprintf("%.2f", ratio))
				continue
			}
			break
		}

		c.accept(job, attempt, ratio, last)
		return buf, nil
	}

	return audio.Buffer{}, &AudioTooLongError{
		Backend: b.Name(),
		Index:   job.Index,
		Text:    job.Text,
		Actual:  last,
		Target:  job.Target,
		Retries: c.maxRetries,
	}
}

func (c *Controller) accept(job Job, attempt int, ratio float64, actual time.Duration) {
	c.stats.TotalSegments++
	if attempt > 0 {
		c.stats.TextOptimized++
		c.stats.MaxOptimizationLevel = max(c.stats.MaxOptimizationLevel, attempt)
	}
	if ratio > c.warnThreshold {
		c.stats.OverDuration++
		c.logger.Info("audio slightly long, kept whole",
			"cue", job.Index, "actual", actual, "target", job.Target, "ratio", fmt.Sprintf("%.2f", ratio))
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
