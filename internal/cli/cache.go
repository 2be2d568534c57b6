package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/format"
)

// CacheCmd creates the cache command with subcommands.
// The env parameter provides injectable dependencies for testing.
func CacheCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the audio cache",
		Long: `Inspect or clear the audio cache.

Synthesized cues are cached by text, service and emotion so reconverting a
file only calls services for changed lines. The least recently used entries
are dropped once the cache exceeds cache.max_size_mb.`,
		Example: `  subvoice cache stats
  subvoice cache clear`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache size and entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd, env)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(cmd, env)
		},
	})

	return cmd
}

// openConfiguredStore opens the cache named by the configuration.
func openConfiguredStore(env *Env) (Store, error) {
	cfg, err := env.ConfigLoader.Load(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	return env.CacheOpener.Open(dir, cfg.CacheBytes())
}

func runCacheStats(cmd *cobra.Command, env *Env) error {
	store, err := openConfiguredStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	used := "-"
	if st.MaxBytes > 0 {
		used = fmt.Sprintf("%.1f%%", 100*float64(st.Bytes)/float64(st.MaxBytes))
	}
	pairs := [][2]string{
		{"Path", st.Path},
		{"Entries", format.Count(st.Entries)},
		{"Size", format.Size(st.Bytes)},
		{"Limit", format.Size(st.MaxBytes)},
		{"Used", used},
	}
	fmt.Fprintln(env.Stdout, renderPairs("Cache", pairs, isTerminal(env.Stdout)))
	return nil
}

func runCacheClear(cmd *cobra.Command, env *Env) error {
	store, err := openConfiguredStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.Clear(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "Removed %s cached entries\n", format.Count(n))
	return nil
}
