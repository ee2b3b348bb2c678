package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipd/internal/config"
	"clipd/internal/store"
	"clipd/internal/timecode"
)

func newOwnerCommand(ctx *commandContext) *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Inspect and tune per-owner settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().Int64Var(&ownerID, "owner", 0, "Owner ID")

	cmd.AddCommand(newOwnerShowCommand(ctx, &ownerID))
	cmd.AddCommand(newOwnerPaddingCommand(ctx, &ownerID))
	return cmd
}

func newOwnerShowCommand(ctx *commandContext, ownerID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show an owner's stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				owner, err := st.GetOwner(cmd.Context(), *ownerID)
				if err != nil {
					return err
				}
				if owner == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "owner %d has no stored settings yet\n", *ownerID)
					return nil
				}
				rows := [][]string{
					{"ID", strconv.FormatInt(owner.ID, 10)},
					{"Username", owner.Username},
					{"Capabilities", owner.Capabilities},
					{"Start Padding", owner.StartPadding().String()},
					{"End Padding", owner.EndPadding().String()},
					{"Last Active", owner.LastActive.Local().Format("2006-01-02 15:04")},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newOwnerPaddingCommand(ctx *commandContext, ownerID *int64) *cobra.Command {
	var (
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "padding",
		Short: "Set the slack added around an owner's requested ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				startPad, err := timecode.ParseDuration(start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				endPad, err := timecode.ParseDuration(end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				if err := st.SetPadding(cmd.Context(), *ownerID, startPad, endPad); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "padding for owner %d set to %s / %s\n",
					*ownerID, startPad, endPad)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "2", "Leading padding (seconds or M:SS)")
	cmd.Flags().StringVar(&end, "end", "2", "Trailing padding (seconds or M:SS)")
	return cmd
}
