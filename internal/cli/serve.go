package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"osintwarn/internal/api"
	"osintwarn/internal/config"
	"osintwarn/internal/engine"
	"osintwarn/internal/history"
	"osintwarn/internal/ingest"
	"osintwarn/internal/logging"
	"osintwarn/internal/metrics"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.API.Addr = addr
			}
			return runServe(cmd.Context(), cfg, path)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides api.addr)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	defs, err := loadDefinitions(ctx, cfg, configPath, "")
	if err != nil {
		return err
	}
	metrics.IndicatorsLoaded.Set(float64(defs.Len()))
	logger.Info("indicator definitions loaded", "count", defs.Len(), "source", cfg.Definitions.Source)

	eng := engine.NewEngine(defs)
	hist := history.NewStore(cfg.History.StoreLimit)

	ingest.StartKafka(ctx, cfg.Ingest.Kafka, ingest.NewConsumer(eng, hist, logger), logger)

	srv := api.New(api.Options{
		Config:      cfg,
		ConfigPath:  configPath,
		Definitions: defs,
		Engine:      eng,
		History:     hist,
		Logger:      logger,
		Version:     version,
	})
	httpServer, serveErr, err := api.Start(ctx, srv)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
