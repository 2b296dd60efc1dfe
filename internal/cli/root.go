// Package cli wires the command-line interface: batch import, export,
// enhance, and the API server, all sharing one environment-driven
// configuration.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mappergraph/crosswalk/internal/config"
	"github.com/mappergraph/crosswalk/internal/logging"
	"github.com/mappergraph/crosswalk/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool

	// EnvFile points at an alternate .env file; empty means ./.env if present.
	EnvFile string
}

// NewRootCommand creates the root command for the crosswalk CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crosswalk",
		Short: "Document relationship graph tooling",
		Long: `Crosswalk maintains a relational graph of regulatory documents, their
elements, and the typed relationships between elements, fed by spreadsheet
imports and queried over HTTP.`,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "environment file to load before reading configuration")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewEnhanceCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// loadConfig reads the environment file (when present), loads configuration,
// and installs the global logger. Verbose forces debug level.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Overload(opts.EnvFile); err != nil {
			return nil, err
		}
	} else {
		// Optional by convention; a missing ./.env is not an error.
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Format)

	return cfg, nil
}

// openStore opens the graph database configured for this run.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Database.Path)
}
