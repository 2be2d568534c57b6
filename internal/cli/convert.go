package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/format"
	"github.com/alnah/go-subvoice/internal/interrupt"
	"github.com/alnah/go-subvoice/internal/pipeline"
	"github.com/alnah/go-subvoice/internal/subtitle"
)

// exportTimeout bounds writing a partial track after the run context was
// cancelled.
const exportTimeout = 5 * time.Minute

// convertOptions holds the convert command flags.
type convertOptions struct {
	runOptions
	output  string
	preview int
	force   bool
}

// ConvertCmd creates the convert command.
// The env parameter provides injectable dependencies for testing.
func ConvertCmd(env *Env) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <file.srt>",
		Short: "Voice a subtitle file into one audio track",
		Long: `Voice a subtitle file into one audio track aligned to the subtitle timeline.

Each cue is synthesized by the first enabled service in priority order. Audio
that runs too long is retried with shortened text, then overlap with the next
cue is corrected by the overlap policy. When a service cannot fit a cue or
stops answering, the whole file is restarted on the next service.

Ctrl+C stops between cues; wait 2s to export the partial track or press
Ctrl+C again to discard it.

Output formats: wav, mp3, m4a, ogg, flac (all but wav need ffmpeg)`,
		Example: `  subvoice convert episode.srt
  subvoice convert episode.srt -o episode.mp3 --emotion storytelling
  subvoice convert episode.srt --service sovits --seed 42
  subvoice convert episode.srt --preview 5 --overlap-policy truncate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, env, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path (default: <input>.<output.format>)")
	cmd.Flags().IntVar(&opts.preview, "preview", 0, "Only voice the first N cues (0: all)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing output file")
	addRunFlags(cmd, &opts.runOptions)

	return cmd
}

// addRunFlags binds the synthesis flags shared with batch.
func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.service, "service", "s", "", "Use only this configured service")
	cmd.Flags().StringVarP(&opts.emotion, "emotion", "e", "", "Emotion preset (see: subvoice emotions)")
	cmd.Flags().StringVar(&opts.overlapPolicy, "overlap-policy", "", "Overlap policy: speed_adjust, truncate, warn_only")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Do not read or write the audio cache")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Generation seed (0: derived from the session id)")
}

// runConvert executes one conversion.
// Validation order: file exists -> flags -> config -> output path -> subtitles
func runConvert(cmd *cobra.Command, env *Env, inputPath string, opts convertOptions) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	// 1. Input exists
	if err := checkInput(inputPath); err != nil {
		return err
	}

	// 2. Flags
	if opts.preview < 0 {
		return fmt.Errorf("%w: --preview must be zero or positive", ErrInvalidFlag)
	}
	if err := opts.validate(); err != nil {
		return err
	}

	// 3. Config
	cfg, err := env.ConfigLoader.Load(env.ConfigPath)
	if err != nil {
		return err
	}

	// 4. Output path
	if cfg.Output.Dir != "" {
		if err := config.EnsureOutputDir(cfg.Output.Dir); err != nil {
			return err
		}
	}
	output := config.ResolveOutputPath(opts.output, cfg.Output.Dir,
		deriveOutputPath(filepath.Base(inputPath), cfg.Output.Format))
	if err := checkOutputFormat(output); err != nil {
		return err
	}
	if err := checkOutputFree(output, opts.force); err != nil {
		return err
	}

	// 5. Subtitles
	file, err := subtitle.ParseFile(inputPath)
	if err != nil {
		return err
	}
	cues := subtitle.Preview(file.Cues, opts.preview)
	fmt.Fprintf(env.Stderr, "Loaded %d subtitles from %s (%s)\n", len(file.Cues), filepath.Base(inputPath), file.Encoding)
	if len(cues) < len(file.Cues) {
		fmt.Fprintf(env.Stderr, "Preview: voicing the first %d\n", len(cues))
	}
	printWarnings(env, subtitle.Validate(cues))

	// === SETUP ===

	r, err := newRunner(ctx, env, cfg, opts.runOptions, outputFormat(output) != formatWAV)
	if err != nil {
		return err
	}
	defer r.Close()

	handler, ctx := interrupt.NewHandler(ctx)
	defer handler.Stop()

	// === SYNTHESIS ===

	prog := newProgress(env.Stderr, "", isTerminal(env.Stderr))
	res, err := r.convert(ctx, cues, prog.event)
	prog.done()
	if err != nil {
		if res == nil || !res.Partial || !handler.WasInterrupted() {
			return err
		}
		prompt := fmt.Sprintf("Stopped after %d/%d cues. Ctrl+C again within %s to discard...", res.Cues, len(cues), handler.Window())
		if handler.WaitForDecision(prompt) == interrupt.Discard {
			return context.Canceled
		}
		fmt.Fprintf(env.Stderr, "Exporting partial track (%d/%d cues)...\n", res.Cues, len(cues))

		// The run context is cancelled; export with a fresh one.
		exportCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		ctx = exportCtx
	}

	// === WRITE OUTPUT ===

	if err := writeTrack(ctx, env, r.ffmpegPath, res.Track, output, opts.force); err != nil {
		return err
	}

	fmt.Fprintln(env.Stdout, renderReport(res, r, output, isTerminal(env.Stdout)))
	fmt.Fprintf(env.Stderr, "Done: %s\n", output)
	return nil
}

// checkInput verifies that path names an existing file.
func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("cannot access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	return nil
}

// maxPrintedWarnings caps the validation warnings printed before a run.
const maxPrintedWarnings = 5

func printWarnings(env *Env, warnings []subtitle.Warning) {
	for i, w := range warnings {
		if i == maxPrintedWarnings {
			fmt.Fprintf(env.Stderr, "Warning: %d more (see: subvoice inspect)\n", len(warnings)-i)
			return
		}
		fmt.Fprintf(env.Stderr, "Warning: %s\n", w)
	}
}

// renderReport renders the run statistics.
func renderReport(res *pipeline.Result, r *runner, output string, colorize bool) string {
	p, o := res.Processing, res.Overlap
	failed := "-"
	if len(res.Failed) > 0 {
		failed = strings.Join(res.Failed, ", ")
	}
	track := "complete"
	if res.Partial {
		track = "partial"
	}
	pairs := [][2]string{
		{"Output", output},
		{"Track", fmt.Sprintf("%s (%s)", format.Duration(res.Track.Duration()), track)},
		{"Service", res.Backend},
		{"Failed services", failed},
		{"Session", r.session.Short()},
		{"Seed", fmt.Sprint(r.session.Seed)},
		{"Cues", format.Count(res.Cues)},
		{"Segments", format.Count(p.TotalSegments)},
		{"Text shortened", fmt.Sprintf("%d (%s)", p.TextOptimized, format.Percent(p.TextOptimized, p.TotalSegments))},
		{"Over duration", fmt.Sprintf("%d (%s)", p.OverDuration, format.Percent(p.OverDuration, p.TotalSegments))},
		{"Max shortening level", fmt.Sprint(p.MaxOptimizationLevel)},
		{"Overlaps", format.Count(o.TotalOverlaps)},
		{"Speed adjusted", format.Count(o.SpeedAdjusted)},
		{"Truncated", format.Count(o.Truncated)},
		{"Warned only", format.Count(o.WarnedOnly)},
		{"Max speed factor", maxFactor(o.MaxSpeedFactor)},
		{"Time adjusted", format.Seconds(o.TotalTimeAdjusted)},
		{"Elapsed", format.DurationHuman(res.Elapsed)},
	}
	return renderPairs("Conversion", pairs, colorize)
}

func maxFactor(f float64) string {
	if f <= 0 {
		return "-"
	}
	return format.Factor(f)
}
