package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"osintwarn/internal/engine"
	"osintwarn/internal/model"
)

func newEvaluateCommand(opts *globalOptions) *cobra.Command {
	var (
		indicatorID string
		payload     string
		defsPath    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a single event against the indicator definitions",
		Long: `Evaluate one event and print the result as JSON.

An indicator that is not defined is reported as {"matched": false, "reason": ...}.

Examples:
  osintwarn evaluate --indicator pir3-notam-surge
  osintwarn evaluate --indicator pir2-coast-guard-patrols --payload '{"vessels": 12}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ev := model.Event{IndicatorID: indicatorID, Payload: map[string]any{}}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
					return fmt.Errorf("--payload must be a JSON object: %w", err)
				}
			}
			defs, err := loadDefinitions(cmd.Context(), cfg, path, defsPath)
			if err != nil {
				return err
			}
			result := engine.NewEngine(defs).Evaluate(ev)
			opts.logger(cmd, cfg).Debug("event evaluated", "indicator_id", ev.IndicatorID, "matched", result.Matched)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&indicatorID, "indicator", "i", "", "indicator ID referenced by the event")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "event payload as a JSON object")
	cmd.Flags().StringVarP(&defsPath, "definitions", "d", "", "definitions file (overrides the configured source)")
	return cmd
}
