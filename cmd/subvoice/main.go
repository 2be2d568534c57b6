package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/apierr"
	"github.com/alnah/go-subvoice/internal/cache"
	"github.com/alnah/go-subvoice/internal/cli"
	"github.com/alnah/go-subvoice/internal/config"
	"github.com/alnah/go-subvoice/internal/ffmpeg"
	"github.com/alnah/go-subvoice/internal/logging"
	"github.com/alnah/go-subvoice/internal/pipeline"
	"github.com/alnah/go-subvoice/internal/subtitle"
	"github.com/alnah/go-subvoice/internal/synth"
	"github.com/alnah/go-subvoice/internal/timeline"
	"github.com/alnah/go-subvoice/internal/tts"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitSynthesis  = 5
	ExitExhausted  = 6
	ExitInterrupt  = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create the CLI environment with production defaults.
	env := cli.DefaultEnv()

	// Root command.
	rootCmd := &cobra.Command{
		Use:   "subvoice",
		Short: "Voice subtitle files into time-aligned audio tracks",
		Long: `Voice subtitle files into time-aligned audio tracks.

Every cue is synthesized by the first configured speech service that can fit
it into its time window. Overlong audio is retried with shortened text, and
the track is assembled so each cue starts on its timestamp.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&env.ConfigPath, "config", "", "Configuration file (default: $XDG_CONFIG_HOME/subvoice/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&env.Debug, "debug", false, "Log every synthesis call")
	rootCmd.PersistentFlags().StringVar(&env.LogFile, "log-file", "", "Append a debug log to this file instead of stderr")

	// Subcommands.
	rootCmd.AddCommand(cli.ConvertCmd(env))
	rootCmd.AddCommand(cli.BatchCmd(env))
	rootCmd.AddCommand(cli.InspectCmd(env))
	rootCmd.AddCommand(cli.ServicesCmd(env))
	rootCmd.AddCommand(cli.EmotionsCmd(env))
	rootCmd.AddCommand(cli.CacheCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Check for context cancellation (interrupt).
	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors (ExitSetup = 3): environment or configuration.
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, config.ErrExists) || errors.Is(err, config.ErrNotDirectory) ||
		errors.Is(err, config.ErrNotWritable) || errors.Is(err, apierr.ErrInvalidConfig) ||
		errors.Is(err, logging.ErrInvalidLevel) || errors.Is(err, tts.ErrUnknownType) ||
		errors.Is(err, cache.ErrLocked) || errors.Is(err, pipeline.ErrNoBackends) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4): inputs and flags.
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, cli.ErrOutputExists) ||
		errors.Is(err, cli.ErrUnsupportedFormat) || errors.Is(err, cli.ErrUnknownService) ||
		errors.Is(err, cli.ErrInvalidFlag) || errors.Is(err, subtitle.ErrNoCues) ||
		errors.Is(err, subtitle.ErrMalformed) || errors.Is(err, subtitle.ErrInvalidCue) ||
		errors.Is(err, subtitle.ErrUndecodable) || errors.Is(err, subtitle.ErrNotSRT) ||
		errors.Is(err, tts.ErrUnknownEmotion) || errors.Is(err, timeline.ErrUnknownPolicy) {
		return ExitValidation
	}

	// Every service failed (ExitExhausted = 6). Checked before synthesis
	// errors because the last backend error is wrapped too.
	if errors.Is(err, pipeline.ErrBackendsExhausted) {
		return ExitExhausted
	}

	// Synthesis errors (ExitSynthesis = 5).
	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrQuotaExceeded) ||
		errors.Is(err, apierr.ErrTimeout) || errors.Is(err, apierr.ErrAuthFailed) ||
		errors.Is(err, apierr.ErrUnavailable) || errors.Is(err, apierr.ErrBadRequest) ||
		errors.Is(err, synth.ErrAudioTooLong) {
		return ExitSynthesis
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"unknown command",           // Subcommand doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
