package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipd/internal/config"
	"clipd/internal/service"
	"clipd/internal/store"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withPipeline(func(cfg *config.Config, st *store.Store, pipeline *service.Pipeline) error {
				if cfg.Notifications.NtfyTopic == "" {
					return fmt.Errorf("notifications are not configured; set ntfy_topic first")
				}
				if err := pipeline.Notifier().TestNotification(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
				return nil
			})
		},
	}
}
