package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/format"
	"github.com/alnah/go-subvoice/internal/pipeline"
	"github.com/alnah/go-subvoice/internal/subtitle"
)

// MaxParallel caps concurrent conversions. Each conversion drives its own
// backend instance, so local services are the bottleneck.
const MaxParallel = 4

// batchOptions holds the batch command flags.
type batchOptions struct {
	runOptions
	parallel  int
	outputDir string
	force     bool
}

// batchItem is the outcome of one file.
type batchItem struct {
	input  string
	output string
	result *pipeline.Result
	err    error
}

// clampParallel constrains the conversion count to [1, MaxParallel].
func clampParallel(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxParallel {
		return MaxParallel
	}
	return n
}

// BatchCmd creates the batch command.
// The env parameter provides injectable dependencies for testing.
func BatchCmd(env *Env) *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "batch <file.srt>...",
		Short: "Voice several subtitle files",
		Long: `Voice several subtitle files, a few at a time.

Every file is converted as with "subvoice convert", sharing one session seed
and one cache. A failing file does not stop the others; the command fails
when any file failed. Each concurrent conversion keeps its own request
rate per service, so --parallel multiplies the load on every service.`,
		Example: `  subvoice batch season1/*.srt --output-dir dub/
  subvoice batch a.srt b.srt --parallel 2 --emotion news`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, env, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 1, fmt.Sprintf("Concurrent conversions (1-%d)", MaxParallel))
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "d", "", "Directory for the tracks (default: output.dir or next to each input)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite existing output files")
	addRunFlags(cmd, &opts.runOptions)

	return cmd
}

// runBatch converts every input with bounded parallelism.
// Validation order: files exist -> flags -> config -> output paths
func runBatch(cmd *cobra.Command, env *Env, inputs []string, opts batchOptions) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	for _, in := range inputs {
		if err := checkInput(in); err != nil {
			return err
		}
	}
	if err := opts.validate(); err != nil {
		return err
	}
	parallel := clampParallel(opts.parallel)

	cfg, err := env.ConfigLoader.Load(env.ConfigPath)
	if err != nil {
		return err
	}
	outDir := cfg.Output.Dir
	if opts.outputDir != "" {
		outDir = config.ExpandPath(opts.outputDir)
	}
	if outDir != "" {
		if err := config.EnsureOutputDir(outDir); err != nil {
			return err
		}
	}

	items := make([]*batchItem, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		name := deriveOutputPath(filepath.Base(in), cfg.Output.Format)
		dir := outDir
		if dir == "" {
			dir = filepath.Dir(in)
		}
		out := config.ResolveOutputPath("", dir, name)
		if prev, dup := seen[out]; dup {
			return fmt.Errorf("%w: %s and %s both write %s", ErrInvalidFlag, prev, in, out)
		}
		seen[out] = in
		if err := checkOutputFree(out, opts.force); err != nil {
			return err
		}
		items[i] = &batchItem{input: in, output: out}
	}
	if err := checkOutputFormat(items[0].output); err != nil {
		return err
	}

	// === SETUP ===

	r, err := newRunner(ctx, env, cfg, opts.runOptions, outputFormat(items[0].output) != formatWAV)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(env.Stderr, "Converting %d files (%d at a time)...\n", len(items), parallel)

	// === CONVERSION ===

	// Each goroutine records its own error so one bad file does not cancel
	// the rest.
	var g errgroup.Group
	g.SetLimit(parallel)
	var mu sync.Mutex
	for _, it := range items {
		g.Go(func() error {
			label := filepath.Base(it.input)
			it.result, it.err = convertBatchItem(cmd, r, it, label, opts.force)
			mu.Lock()
			if it.err != nil {
				fmt.Fprintf(env.Stderr, "[%s] Failed: %v\n", label, it.err)
			} else {
				fmt.Fprintf(env.Stderr, "[%s] Done: %s\n", label, it.output)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintln(env.Stdout, renderBatchReport(items, isTerminal(env.Stdout)))

	var errs []error
	for _, it := range items {
		if it.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.input, it.err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d files failed: %w", len(errs), len(items), errors.Join(errs...))
	}
	return nil
}

// convertBatchItem parses, converts and writes one file.
func convertBatchItem(cmd *cobra.Command, r *runner, it *batchItem, label string, force bool) (*pipeline.Result, error) {
	ctx := cmd.Context()
	file, err := subtitle.ParseFile(it.input)
	if err != nil {
		return nil, err
	}
	prog := newProgress(r.env.Stderr, label, false)
	res, err := r.convert(ctx, file.Cues, prog.event)
	if err != nil {
		return nil, err
	}
	if err := writeTrack(ctx, r.env, r.ffmpegPath, res.Track, it.output, force); err != nil {
		return nil, err
	}
	return res, nil
}

func renderBatchReport(items []*batchItem, colorize bool) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		if it.err != nil {
			rows = append(rows, []string{filepath.Base(it.input), "failed", "-", "-", "-", "-"})
			continue
		}
		res := it.result
		rows = append(rows, []string{
			filepath.Base(it.input),
			"ok",
			res.Backend,
			format.Count(res.Cues),
			format.Duration(res.Track.Duration()),
			format.Percent(res.Processing.TextOptimized, res.Processing.TotalSegments),
		})
	}
	return renderTable(
		[]string{"File", "Status", "Service", "Cues", "Track", "Shortened"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		colorize,
	)
}
