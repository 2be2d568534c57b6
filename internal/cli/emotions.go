package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/tts"
)

// EmotionsCmd creates the emotions command.
// The env parameter provides injectable dependencies for testing.
func EmotionsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "emotions",
		Short: "List emotion presets",
		Long: `List the emotion presets accepted by --emotion and the voice.emotion setting.

A preset sets the sampling parameters of cloning services and the speaking
speed of every service.`,
		Example: `  subvoice emotions`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmotions(env)
		},
	}
}

func runEmotions(env *Env) error {
	presets := tts.Presets()
	rows := make([][]string, 0, len(presets))
	for _, p := range presets {
		name := p.Name
		if name == tts.DefaultEmotion {
			name += " (default)"
		}
		rows = append(rows, []string{
			name,
			p.Description,
			fmt.Sprintf("%.2f", p.Temperature),
			fmt.Sprint(p.TopK),
			fmt.Sprintf("%.2f", p.TopP),
			fmt.Sprintf("%.2f", p.Speed),
			fmt.Sprintf("%.2f", p.RepetitionPenalty),
		})
	}
	fmt.Fprintln(env.Stdout, renderTable(
		[]string{"Name", "Style", "Temperature", "Top K", "Top P", "Speed", "Repetition"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		isTerminal(env.Stdout),
	))
	return nil
}
