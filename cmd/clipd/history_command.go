package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"clipd/internal/config"
	"clipd/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		ownerID int64
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed batches for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				entries, err := st.ListHistory(cmd.Context(), ownerID, limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no history recorded")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.CreatedAt.Local().Format("2006-01-02 15:04"),
						entry.SourceName,
						entry.Operation,
						strconv.Itoa(entry.ClipCount),
						formatBytes(entry.TotalBytes),
						entry.Duration.Round(100 * time.Millisecond).String(),
					})
				}
				headers := []string{"When", "Source", "Operation", "Clips", "Size", "Took"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owner ID to list history for")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to list (0 for all)")
	return cmd
}
