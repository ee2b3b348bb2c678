package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipd/internal/cache"
	"clipd/internal/config"
	"clipd/internal/store"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the clip cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newCacheStatsCommand(ctx))
	cmd.AddCommand(newCacheListCommand(ctx))
	cmd.AddCommand(newCachePruneCommand(ctx))
	return cmd
}

func (c *commandContext) withCache(fn func(*config.Config, *cache.Manager) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		logger, err := c.newLogger(cfg)
		if err != nil {
			return err
		}
		manager := cache.NewManager(cfg, st, logger)
		if manager == nil {
			return fmt.Errorf("cache is disabled in the configuration")
		}
		return fn(cfg, manager)
	})
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage and filesystem headroom",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withCache(func(cfg *config.Config, manager *cache.Manager) error {
				stats, err := manager.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Directory", manager.Root()},
					{"Entries", strconv.FormatInt(stats.Entries, 10)},
					{"Size", formatBytes(stats.TotalBytes)},
					{"Max Age", stats.MaxAge},
					{"Free Space", formatBytes(int64(stats.FreeBytes))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached clips, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				entries, err := st.ListCacheEntries(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.Key[:12],
						entry.Operation,
						formatBytes(entry.SizeBytes),
						strconv.FormatInt(entry.AccessCount, 10),
						entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				headers := []string{"Key", "Operation", "Size", "Hits", "Created"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list (0 for all)")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Evict cache entries older than the configured max age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withCache(func(cfg *config.Config, manager *cache.Manager) error {
				removed, err := manager.EvictExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %d entries\n", removed)
				return nil
			})
		},
	}
}
