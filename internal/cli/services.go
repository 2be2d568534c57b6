package cli

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/logging"
	"github.com/alnah/go-subvoice/internal/tts"
)

// healthTimeout bounds each service health check.
const healthTimeout = 10 * time.Second

// ServicesCmd creates the services command.
// The env parameter provides injectable dependencies for testing.
func ServicesCmd(env *Env) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List configured synthesis services",
		Long: `List configured synthesis services in the order they are tried.

With --check, every enabled service is built and asked whether it can accept
requests.`,
		Example: `  subvoice services
  subvoice services --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServices(cmd, env, check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check that enabled services are reachable")

	return cmd
}

func runServices(cmd *cobra.Command, env *Env, check bool) error {
	cfg, err := env.ConfigLoader.Load(env.ConfigPath)
	if err != nil {
		return err
	}
	specs, err := cfg.Specs()
	if err != nil {
		return err
	}
	slices.SortStableFunc(specs, func(a, b tts.Spec) int { return cmp.Compare(a.Priority, b.Priority) })

	headers := []string{"Priority", "Name", "Type", "Enabled", "Voice", "Cost / 1k chars"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
	if check {
		headers = append(headers, "Health")
		aligns = append(aligns, alignLeft)
	}

	rows := make([][]string, 0, len(specs))
	healthy := 0
	for _, s := range specs {
		row := []string{fmt.Sprint(s.Priority), s.Name, s.Type, yesNo(s.Enabled), describeVoice(s), serviceCost(s)}
		if check {
			status := "-"
			if s.Enabled {
				status = checkHealth(cmd.Context(), env, s)
				if status == "ok" {
					healthy++
				}
			}
			row = append(row, status)
		}
		rows = append(rows, row)
	}

	fmt.Fprintln(env.Stdout, renderTable(headers, rows, aligns, isTerminal(env.Stdout)))
	if check {
		fmt.Fprintf(env.Stderr, "%d service(s) ready\n", healthy)
	}
	return nil
}

// checkHealth builds the backend for s and reports "ok" or the failure.
func checkHealth(ctx context.Context, env *Env, s tts.Spec) string {
	b, err := env.BackendFactory.NewBackend(s, logging.Discard())
	if err != nil {
		return "error: " + err.Error()
	}
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := b.Health(ctx); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}

func describeVoice(s tts.Spec) string {
	v := s.Voice
	var d string
	switch s.Type {
	case tts.TypeOpenAI:
		d = v.Voice + " / " + v.Model
	case tts.TypeGPTSoVITS:
		d = s.APIURL
		if v.Language != "" {
			d += " (" + v.Language + ")"
		}
	case tts.TypePiper:
		d = s.ModelPath
	case tts.TypeGoogle:
		d = v.Voice
		if v.Language != "" {
			d += " (" + v.Language + ")"
		}
	}
	if v.Emotion != "" {
		d += " [" + v.Emotion + "]"
	}
	if d == "" {
		return "-"
	}
	return d
}

func serviceCost(s tts.Spec) string {
	var c float64
	switch s.Type {
	case tts.TypeOpenAI:
		c = tts.EstimateCost(s.Voice.Model, 1000)
	case tts.TypeGoogle:
		c = tts.EstimateGoogleCost(s.Voice.Voice, 1000)
	default:
		return "free"
	}
	if c == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.3f", c)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
