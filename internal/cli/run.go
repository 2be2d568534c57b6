package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/logging"
	"github.com/alnah/go-subvoice/internal/pipeline"
	"github.com/alnah/go-subvoice/internal/session"
	"github.com/alnah/go-subvoice/internal/subtitle"
	"github.com/alnah/go-subvoice/internal/synth"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// runOptions are the synthesis flags shared by convert and batch.
type runOptions struct {
	service       string
	emotion       string
	overlapPolicy string
	noCache       bool
	seed          int64
}

// validate checks flag values that need no configuration.
func (o runOptions) validate() error {
	if o.emotion != "" {
		if _, ok := tts.LookupPreset(o.emotion); !ok {
			return fmt.Errorf("%w: %q (available: %s)", tts.ErrUnknownEmotion, o.emotion, strings.Join(tts.PresetNames(), ", "))
		}
	}
	if o.overlapPolicy != "" {
		if _, err := timeline.ParsePolicy(o.overlapPolicy); err != nil {
			return err
		}
	}
	if o.seed < 0 {
		return fmt.Errorf("%w: --seed must be positive", ErrInvalidFlag)
	}
	return nil
}

// runner holds everything a conversion needs that outlives one file:
// configuration, session, logger, backend specs and the cache.
type runner struct {
	env       *Env
	cfg       *config.Config
	session   *session.Session
	logger    *log.Logger
	specs     []tts.Spec
	policy    timeline.Policy
	stretcher timeline.Stretcher
	store     Store
	emotions  map[string]string
	logFile   *os.File

	// ffmpegPath is empty when ffmpeg could not be resolved.
	ffmpegPath string
}

// newRunner resolves the run setup. needFFmpeg makes a missing ffmpeg an
// error instead of a fallback to the naive stretcher.
func newRunner(ctx context.Context, env *Env, cfg *config.Config, opts runOptions, needFFmpeg bool) (*runner, error) {
	if opts.overlapPolicy != "" {
		cfg.Audio.OverlapPolicy = opts.overlapPolicy
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	sess := session.New(opts.seed)
	logger, logFile, err := openLogger(env, cfg, sess.Short())
	if err != nil {
		return nil, err
	}

	specs, err := selectSpecs(cfg, opts.service)
	if err != nil {
		closeLog(logFile)
		return nil, err
	}
	r := &runner{
		env:       env,
		cfg:       cfg,
		session:   sess,
		logger:    logger,
		policy:    policy,
		stretcher: timeline.NaiveStretcher{},
		emotions:  make(map[string]string, len(specs)),
		logFile:   logFile,
	}
	for i := range specs {
		if opts.emotion != "" {
			v, err := specs[i].Voice.WithEmotion(opts.emotion)
			if err != nil {
				r.Close()
				return nil, err
			}
			specs[i].Voice = v
		}
		specs[i].Voice = sess.Apply(specs[i].Voice)
		r.emotions[specs[i].Name] = specs[i].Voice.Emotion
	}
	r.specs = specs

	wantStretch := policy == timeline.SpeedAdjust && cfg.Audio.TimeStretch == config.StretchFFmpeg
	if needFFmpeg || wantStretch {
		path, err := env.FFmpegResolver.Resolve(ctx)
		switch {
		case err != nil && needFFmpeg:
			r.Close()
			return nil, err
		case err != nil:
			fmt.Fprintf(env.Stderr, "Warning: %v; speed adjustment falls back to resampling\n", err)
		default:
			env.FFmpegResolver.CheckVersion(ctx, path)
			r.ffmpegPath = path
			if wantStretch {
				r.stretcher = env.Encoder.Stretcher(path)
			}
		}
	}

	if cfg.Cache.Enabled && !opts.noCache {
		r.store = openStore(env, cfg)
	}
	return r, nil
}

// openLogger builds the run logger: stderr at the configured level, or the
// --log-file sink at debug level.
func openLogger(env *Env, cfg *config.Config, prefix string) (*log.Logger, *os.File, error) {
	if env.LogFile != "" {
		logger, f, err := logging.OpenFile(config.ExpandPath(env.LogFile))
		if err != nil {
			return nil, nil, err
		}
		logger.SetPrefix(prefix)
		return logger, f, nil
	}
	level := cfg.Logging.Level
	if env.Debug {
		level = "debug"
	}
	logger, err := logging.New(env.Stderr, logging.Options{Level: level, Prefix: prefix})
	return logger, nil, err
}

func closeLog(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

// selectSpecs returns the enabled backend specs, or only the named one
// (enabled regardless of configuration) when service is set.
func selectSpecs(cfg *config.Config, service string) ([]tts.Spec, error) {
	if service == "" {
		return cfg.Specs()
	}
	svc, ok := cfg.Service(service)
	if !ok {
		names := make([]string, 0, len(cfg.Services))
		for _, s := range cfg.Services {
			names = append(names, s.Name)
		}
		return nil, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownService, service, strings.Join(names, ", "))
	}
	spec, err := svc.Spec()
	if err != nil {
		return nil, err
	}
	spec.Enabled = true
	return []tts.Spec{spec}, nil
}

// openStore opens the cache, or returns nil with a warning when it cannot.
func openStore(env *Env, cfg *config.Config) Store {
	dir, err := cfg.CacheDir()
	if err == nil {
		var store Store
		store, err = env.CacheOpener.Open(dir, cfg.CacheBytes())
		if err == nil {
			return store
		}
	}
	fmt.Fprintf(env.Stderr, "Warning: cache disabled: %v\n", err)
	return nil
}

// Close logs cache usage and releases the cache and log file.
func (r *runner) Close() {
	defer closeLog(r.logFile)
	if r.store == nil {
		return
	}
	if st, err := r.store.Stats(context.Background()); err == nil && st.Hits+st.Misses > 0 {
		r.logger.Info("cache usage", "hits", st.Hits, "misses", st.Misses,
			"hit_rate", fmt.Sprintf("%.0f%%", 100*st.HitRate()))
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("closing cache failed", "err", err)
	}
}

// decorate wraps every backend with the cache and debug call logging.
func (r *runner) decorate(b tts.Backend) tts.Backend {
	b = tts.WithCache(b, r.store, r.emotions[b.Name()], r.logger)
	return tts.WithProgress(b, func(p tts.Progress) {
		if p.Err != nil {
			r.logger.Debug("synthesis call failed", "backend", p.Backend, "call", p.Call, "err", p.Err)
			return
		}
		r.logger.Debug("synthesis call", "backend", p.Backend, "call", p.Call,
			"audio", p.Duration, "took", p.Elapsed.Round(time.Millisecond))
	})
}

// factoryFunc adapts a function to pipeline.BackendFactory.
type factoryFunc func(spec tts.Spec) (tts.Backend, error)

func (f factoryFunc) New(spec tts.Spec) (tts.Backend, error) { return f(spec) }

// convert runs the reconciliation engine on cues. Each call gets its own
// controller and assembler, so files may be converted concurrently.
func (r *runner) convert(ctx context.Context, cues []subtitle.Cue, events func(pipeline.Event)) (*pipeline.Result, error) {
	asm, err := timeline.New(r.cfg.OutputFormat(),
		timeline.WithPolicy(r.policy),
		timeline.WithSpeedLimit(r.cfg.Audio.SpeedAdjustLimit),
		timeline.WithFade(time.Duration(r.cfg.Audio.FadeDuration)),
		timeline.WithStretcher(r.stretcher),
		timeline.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}
	ctrl := synth.New(
		synth.WithMaxRetries(r.cfg.Audio.MaxRetries),
		synth.WithLogger(r.logger),
	)
	factory := factoryFunc(func(spec tts.Spec) (tts.Backend, error) {
		return r.env.BackendFactory.NewBackend(spec, r.logger)
	})
	coord, err := pipeline.New(factory, r.specs, asm,
		pipeline.WithController(ctrl),
		pipeline.WithNextStart(r.cfg.Audio.UseNextStart),
		pipeline.WithDecorator(r.decorate),
		pipeline.WithEvents(events),
		pipeline.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}
	return coord.Run(ctx, cues)
}

// ---------------------------------------------------------------------------
// Progress output
// ---------------------------------------------------------------------------

// progressEvery is the cue interval between progress lines when stderr is
// not a terminal.
const progressEvery = 10

// progress prints coordinator events. On a terminal the cue counter is
// rewritten in place; otherwise a line is printed every progressEvery cues.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	inPlace bool
	dirty   bool
}

func newProgress(w io.Writer, label string, inPlace bool) *progress {
	if label != "" {
		label = "[" + label + "] "
	}
	return &progress{w: w, label: label, inPlace: inPlace}
}

func (p *progress) event(e pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case pipeline.EventBackendStart:
		p.breakLine()
		fmt.Fprintf(p.w, "%sSynthesizing %d cues with %s...\n", p.label, e.Total, e.Backend)
	case pipeline.EventBackendFailed:
		p.breakLine()
		fmt.Fprintf(p.w, "%sService %s failed: %v\n", p.label, e.Backend, e.Err)
	case pipeline.EventCueDone:
		if p.inPlace {
			fmt.Fprintf(p.w, "\r%s  Cue %d/%d", p.label, e.Cue, e.Total)
			p.dirty = true
			if e.Cue == e.Total {
				p.breakLine()
			}
			return
		}
		if e.Cue%progressEvery == 0 || e.Cue == e.Total {
			fmt.Fprintf(p.w, "%s  Cue %d/%d\n", p.label, e.Cue, e.Total)
		}
	}
}

// done terminates an in-place line left open by an interrupted run.
func (p *progress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
}

func (p *progress) breakLine() {
	if p.dirty {
		fmt.Fprintln(p.w)
		p.dirty = false
	}
}
