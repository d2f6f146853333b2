package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sqlchat-ai/sqlchat/pkg/cache"
	cachesqlite "github.com/sqlchat-ai/sqlchat/pkg/cache/sqlite"
	"github.com/sqlchat-ai/sqlchat/pkg/config"
)

func openCache(configPath string) (*cache.Cache, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := cachesqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return cache.New(store, cache.Options{
		DefaultTTL:   cfg.Cache.TTL,
		MaxSize:      cfg.Cache.MaxSizeBytes(),
		MaxEntrySize: cfg.Cache.MaxEntrySizeBytes(),
	}), nil
}

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the query-result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Statistics()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Entries:\t%d\n", stats.TotalEntries)
			fmt.Fprintf(w, "Total size:\t%.2f MB\n", float64(stats.TotalSizeBytes)/1024/1024)
			fmt.Fprintf(w, "Total accesses:\t%d\n", stats.TotalAccesses)
			fmt.Fprintf(w, "Avg execution time:\t%.1f ms\n", stats.AvgExecutionTimeMS)
			fmt.Fprintf(w, "Today hits:\t%d\n", stats.Today.Hits)
			fmt.Fprintf(w, "Today misses:\t%d\n", stats.Today.Misses)
			fmt.Fprintf(w, "Today hit rate:\t%.1f%%\n", stats.Today.HitRate*100)
			fmt.Fprintf(w, "API calls saved:\t%d\n", stats.Today.APICallsSaved)
			return w.Flush()
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			var n int
			if expiredOnly {
				n, err = c.ClearExpired()
			} else {
				n, err = c.ClearAll()
			}
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Printf("Removed %d expired cache entries.\n", n)
			} else {
				fmt.Printf("Removed %d cache entries.\n", n)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Invalidate entries with failure-signature answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.SweepInvalid()
			if err != nil {
				return err
			}
			fmt.Printf("Invalidated %d entries.\n", n)
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge-errors",
		Short: "Hard-delete entries with failure-signature answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.PurgeErrors()
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d entries.\n", n)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sqlchat.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd, sweepCmd, purgeCmd)
	return cmd
}
