// Package cli implements the osintwarn command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"osintwarn/internal/config"
	"osintwarn/internal/indicators"
	"osintwarn/internal/logging"
	"osintwarn/internal/storage"
)

// version is overridden at build time with -ldflags "-X osintwarn/internal/cli.version=...".
var version = "dev"

const defaultConfigPath = "osintwarn.yaml"

type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "osintwarn",
		Short: "OSINT warning indicator service",
		Long: `osintwarn maps events that reference an indicator ID to the indicator's
definition and answers with a confidence score and a recommended next task.

Examples:
  # Run the HTTP service
  osintwarn serve --config osintwarn.yaml

  # Evaluate a single event from the shell
  osintwarn evaluate --indicator pir2-rocket-force-dispersal`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the service config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newEvaluateCommand(opts),
		newIndicatorsCommand(opts),
		newConfigCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly; otherwise the defaults apply.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := config.ResolvePath(o.configPath)
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg, path = config.DefaultConfig(), ""
	default:
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, path, nil
}

func (o *globalOptions) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}

// definitionsPath resolves the definitions file relative to the config file.
func definitionsPath(cfg *config.Config, configPath, override string) string {
	if override != "" {
		return override
	}
	return config.RelativeTo(configPath, cfg.Definitions.Path)
}

// loadDefinitions builds the definition store from the configured source.
func loadDefinitions(ctx context.Context, cfg *config.Config, configPath, override string) (*indicators.Store, error) {
	if override == "" && cfg.Definitions.Source == config.SourceStorage {
		store, err := storage.NewStore(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		if store == nil {
			return nil, errors.New("definitions.source is storage but storage is disabled")
		}
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		defs, err := store.LoadDefinitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("load definitions from storage: %w", err)
		}
		if len(defs) == 0 {
			return nil, errors.New("no indicator definitions in storage; run `osintwarn indicators import` first")
		}
		return indicators.New(defs), nil
	}
	return indicators.LoadFile(definitionsPath(cfg, configPath, override))
}
