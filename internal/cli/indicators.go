package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"osintwarn/internal/indicators"
	"osintwarn/internal/storage"
)

func newIndicatorsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Inspect and import indicator definitions",
	}
	cmd.AddCommand(newIndicatorsListCommand(opts), newIndicatorsImportCommand(opts))
	return cmd
}

func newIndicatorsListCommand(opts *globalOptions) *cobra.Command {
	var defsPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the loaded indicator definitions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			defs, err := loadDefinitions(cmd.Context(), cfg, path, defsPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"indicators": defs.List()})
		},
	}
	cmd.Flags().StringVarP(&defsPath, "definitions", "d", "", "definitions file (overrides the configured source)")
	return cmd
}

func newIndicatorsImportCommand(opts *globalOptions) *cobra.Command {
	var defsPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored definitions with the contents of a definitions file",
		Long: `Parse a definitions file and write it to the configured storage backend.

Run this before switching definitions.source to "storage".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Storage.Enabled {
				return errors.New("storage.enabled must be true to import definitions")
			}
			defs, err := indicators.LoadFile(definitionsPath(cfg, path, defsPath))
			if err != nil {
				return err
			}
			store, err := storage.NewStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
			if err := store.SaveDefinitions(ctx, defs.List()); err != nil {
				return fmt.Errorf("save definitions: %w", err)
			}
			opts.logger(cmd, cfg).Info("indicator definitions imported", "count", defs.Len(), "driver", cfg.Storage.Driver)
			cmd.Printf("imported %d indicator definitions\n", defs.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&defsPath, "definitions", "d", "", "definitions file (defaults to definitions.path)")
	return cmd
}
