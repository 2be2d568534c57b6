package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/format"
	"github.com/alnah/go-subvoice/internal/subtitle"
	"github.com/alnah/go-subvoice/internal/timing"
)

// InspectCmd creates the inspect command.
// The env parameter provides injectable dependencies for testing.
func InspectCmd(env *Env) *cobra.Command {
	var cues int

	cmd := &cobra.Command{
		Use:   "inspect <file.srt>",
		Short: "Check a subtitle file before voicing it",
		Long: `Parse a subtitle file and report its statistics and validation warnings.

Cues whose estimated speech time exceeds their window are counted as tight:
they will likely need shortening or a speed adjustment. No service is called.`,
		Example: `  subvoice inspect episode.srt
  subvoice inspect episode.srt --cues 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(env, args[0], cues)
		},
	}

	cmd.Flags().IntVarP(&cues, "cues", "n", 0, "Also list the first N cues with their estimates (-1: all)")

	return cmd
}

func runInspect(env *Env, path string, listCues int) error {
	if err := checkInput(path); err != nil {
		return err
	}
	file, err := subtitle.ParseFile(path)
	if err != nil {
		return err
	}
	colorize := isTerminal(env.Stdout)

	st := subtitle.Summarize(file.Cues)
	var estimated float64
	tight := 0
	for _, c := range file.Cues {
		e := timing.Estimate(c.Text)
		estimated += e
		if e > c.Duration().Seconds() {
			tight++
		}
	}

	pairs := [][2]string{
		{"File", filepath.Base(file.Path)},
		{"Encoding", file.Encoding},
		{"Cues", format.Count(st.Count)},
		{"Span", fmt.Sprintf("%s → %s (%s)", subtitle.Timestamp(st.First), subtitle.Timestamp(st.Last), format.Duration(st.Span))},
		{"Speech time", format.Duration(st.SpeechTime)},
		{"Average cue", format.Seconds(st.AverageDuration)},
		{"Characters", format.Count(st.Runes)},
		{"Average characters", fmt.Sprintf("%.1f", st.AverageRunes)},
		{"Estimated speech", format.Seconds(secondsDuration(estimated))},
		{"Tight cues", fmt.Sprintf("%d (%s)", tight, format.Percent(tight, st.Count))},
	}
	fmt.Fprintln(env.Stdout, renderPairs("Subtitles", pairs, colorize))

	if listCues != 0 {
		fmt.Fprintln(env.Stdout, renderCues(subtitle.Preview(file.Cues, listCues), colorize))
	}

	warnings := subtitle.Validate(file.Cues)
	if len(warnings) == 0 {
		fmt.Fprintln(env.Stderr, "No problems found")
		return nil
	}
	rows := make([][]string, 0, len(warnings))
	for _, w := range warnings {
		rows = append(rows, []string{fmt.Sprint(w.Index), string(w.Kind), w.Message})
	}
	fmt.Fprintln(env.Stdout, renderTable([]string{"Cue", "Kind", "Warning"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft}, colorize))
	fmt.Fprintf(env.Stderr, "%d warning(s)\n", len(warnings))
	return nil
}

func renderCues(cues []subtitle.Cue, colorize bool) string {
	rows := make([][]string, 0, len(cues))
	for _, c := range cues {
		window := c.Duration()
		est := timing.EstimateDuration(c.Text)
		rows = append(rows, []string{
			fmt.Sprint(c.Index),
			subtitle.Timestamp(c.Start),
			format.Seconds(window),
			format.Seconds(est),
			format.Factor(est.Seconds() / window.Seconds()),
			c.Text,
		})
	}
	return renderTable(
		[]string{"#", "Start", "Window", "Estimate", "Ratio", "Text"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		colorize,
	)
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
