package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clipd/internal/config"
	"clipd/internal/daemon"
	"clipd/internal/service"
	"clipd/internal/store"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:          "daemon",
		Short:        "Run the clipd daemon with the HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withPipeline(func(cfg *config.Config, st *store.Store, pipeline *service.Pipeline) error {
				logger, err := ctx.newLogger(cfg)
				if err != nil {
					return err
				}

				d, err := daemon.New(cfg, st, pipeline, logger)
				if err != nil {
					return err
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if err := d.Start(runCtx); err != nil {
					return err
				}
				if addr := d.APIAddr(); addr != "" {
					logger.Info("daemon listening", "addr", addr)
				}

				<-runCtx.Done()
				d.Stop()
				return nil
			})
		},
	}
}
