package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/metisearch/metis/pkg/config"
	"github.com/metisearch/metis/pkg/storage"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show engine health statistics and recent searches",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "window",
				Usage: "How far back to aggregate engine statistics",
				Value: 24 * time.Hour,
			},
			&cli.IntFlag{
				Name:  "searches",
				Usage: "Number of recent searches to show (0 to hide)",
				Value: 10,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return showStats(c.String("config"), c.Duration("window"), c.Int("searches"))
		},
	}
}

// showStats displays per-engine health from the history database
func showStats(configPath string, window time.Duration, searches int) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	history, err := storage.NewHistory(filepath.Join(cfg.StorageDir, historyDBName))
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			fmt.Printf("Warning: failed to close history database: %v\n", err)
		}
	}()

	stats, err := history.Stats(window)
	if err != nil {
		return fmt.Errorf("getting engine stats: %w", err)
	}

	fmt.Printf("Engine health (last %v):\n", window)
	if len(stats) == 0 {
		fmt.Println("  no recorded outcomes")
	}
	for _, s := range stats {
		fmt.Printf("  %s: %d requests, %d ok, %d failed, avg %.0fms, last outcome %s\n",
			s.Engine, s.Total, s.Successes, s.Failures, s.AvgElapsedMs, s.LastKind)
	}

	suspensions, err := history.LoadSuspensions()
	if err != nil {
		return fmt.Errorf("loading suspensions: %w", err)
	}
	if len(suspensions) > 0 {
		fmt.Println("\nSuspended engines:")
		for engine, until := range suspensions {
			fmt.Printf("  %s until %s\n", engine, until.Format(time.RFC3339))
		}
	}

	if searches > 0 {
		entries, err := history.RecentSearches(searches)
		if err != nil {
			return fmt.Errorf("listing recent searches: %w", err)
		}
		if len(entries) > 0 {
			fmt.Println("\nRecent searches:")
			for _, entry := range entries {
				fmt.Printf("  %s  %q  page %d  %d results, %d errors, %dms\n",
					entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Terms,
					entry.Page, entry.ResultCount, entry.ErrorCount, entry.ElapsedMs)
			}
		}
	}

	return nil
}
