package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-subvoice/internal/config"
)

// ConfigCmd creates the config command with subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Manage the configuration file.

The file lives at $XDG_CONFIG_HOME/subvoice/config.toml unless --config is
given. Environment variables prefixed with SUBVOICE_ override file values,
and OPENAI_API_KEY fills the OpenAI key when the file has none.`,
		Example: `  subvoice config init
  subvoice config show
  subvoice config path`,
	}

	cmd.AddCommand(configInitCmd(env))
	cmd.AddCommand(configShowCmd(env))
	cmd.AddCommand(configPathCmd(env))

	return cmd
}

// configInitCmd creates the "config init" subcommand.
func configInitCmd(env *Env) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(env, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// configShowCmd creates the "config show" subcommand.
func configShowCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults and environment overrides are
applied. API keys are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(env)
		},
	}
}

// configPathCmd creates the "config path" subcommand.
func configPathCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPath(env)
		},
	}
}

// configPath returns --config or the default location.
func configPath(env *Env) (string, error) {
	if env.ConfigPath != "" {
		return config.ExpandPath(env.ConfigPath), nil
	}
	return config.DefaultPath()
}

// runConfigInit handles the "config init" command.
func runConfigInit(env *Env, force bool) error {
	path, err := configPath(env)
	if err != nil {
		return err
	}
	if err := config.Init(path, force); err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "Wrote %s\n", path)
	return nil
}

// runConfigShow handles the "config show" command.
func runConfigShow(env *Env) error {
	cfg, err := env.ConfigLoader.Load(env.ConfigPath)
	if err != nil {
		return err
	}
	shown := *cfg
	shown.Services = append([]config.Service(nil), cfg.Services...)
	for i := range shown.Services {
		shown.Services[i].Credentials.APIKey = maskKey(shown.Services[i].Credentials.APIKey)
	}
	data, err := shown.Marshal()
	if err != nil {
		return err
	}
	_, _ = env.Stdout.Write(data)
	return nil
}

// runConfigPath handles the "config path" command.
func runConfigPath(env *Env) error {
	path, err := configPath(env)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, path)
	return nil
}

// maskKey keeps the last four characters of a secret.
func maskKey(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible {
		return "****"
	}
	return "****" + key[len(key)-visible:]
}
