package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/dataspace/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is the resolved configuration, set before any command runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// configFlags maps command-line flags to config keys. Flags a command does
// not define are skipped.
var configFlags = map[string]string{
	"format":    "format",
	"log-level": "log_level",
	"fuel":      "fuel",
	"journal":   "trace_db",
	"watch":     "watch_dir",
}

// NewRootCommand creates the root command for the dsrun CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dsrun",
		Short: "dsrun - dataspace rule runner",
		Long:  "Compile CUE rule programs and run them as actors in a dataspace.",

		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(opts, cmd); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd.ErrOrStderr(), opts)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default .dataspace.yaml)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig resolves opts.Config from defaults, config file, environment
// and the flags of the running command.
func loadConfig(opts *RootOptions, cmd *cobra.Command) error {
	v := config.New(opts.ConfigFile)
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	opts.Config = cfg
	opts.Format = cfg.Format
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range configFlags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// setupLogging installs the default slog logger on w. --verbose forces
// debug level.
func setupLogging(w io.Writer, opts *RootOptions) {
	level := opts.Config.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
