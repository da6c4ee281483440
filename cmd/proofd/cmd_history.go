package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"proofd/internal/config"
	"proofd/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the correction history",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryStatsCmd())
	cmd.AddCommand(newHistoryPruneCmd())
	return cmd
}

func openHistory(configPath string) (*history.Store, error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in the configuration")
	}
	return history.Open(cfg.History.Path)
}

func newHistoryListCmd() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent auto-corrections",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			corrections, err := store.RecentCorrections(limit)
			if err != nil {
				return err
			}
			if len(corrections) == 0 {
				fmt.Println("No corrections recorded.")
				return nil
			}

			for _, c := range corrections {
				status := ""
				if c.Reverted {
					status = " (reverted)"
				}
				fmt.Printf("[%s] %s: %q -> %q%s\n",
					c.AppliedAt.Format("2006-01-02 15:04:05"),
					c.SurfaceID, c.Original, c.Corrected, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of corrections to show")
	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show correction and analysis counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats()
			if err != nil {
				return err
			}

			fmt.Printf("Analysis passes:  %d\n", stats.Passes)
			fmt.Printf("Corrections:      %d\n", stats.Corrections)
			fmt.Printf("Reverted:         %d\n", stats.Reverted)
			if stats.Corrections > 0 {
				kept := stats.Corrections - stats.Reverted
				fmt.Printf("Kept:             %d (%.0f%%)\n",
					kept, float64(kept)/float64(stats.Corrections)*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var configPath string
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete corrections older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d corrections older than %d days.\n", n, days)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().IntVar(&days, "days", 90, "delete corrections older than this many days")
	return cmd
}
