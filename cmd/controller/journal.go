package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/colorsignal/session-controller/internal/config"
	"github.com/colorsignal/session-controller/internal/logging"
)

// #region journal
func newJournalCmd(configPath *string) *cobra.Command {
	var (
		path    string
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent prediction cycles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				path = cfg.Journal.Path
			}
			if path == "" {
				return errors.New("no journal configured (set journal.path or pass --db)")
			}

			j, err := logging.OpenJournal(path)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			entries, err := j.Recent(ctx, last)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printCycles(entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "db", "", "journal path (overrides journal.path)")
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent cycles")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

// #endregion journal

// #region table
func printCycles(entries []logging.CycleEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no prediction cycles recorded")
		return
	}
	fmt.Printf("%-19s  %-5s  %7s  %8s  %-9s  %-19s  %-6s  %s\n",
		"started", "retry", "history", "feedback", "outcome", "category", "label", "ms")
	fmt.Printf("%-19s+-%-5s+-%7s+-%8s+-%-9s+-%-19s+-%-6s+-%s\n",
		"-------------------", "-----", "-------", "--------", "---------", "-------------------", "------", "----")
	for _, e := range entries {
		retry := ""
		if e.Retry {
			retry = "yes"
		}
		fmt.Printf("%-19s  %-5s  %7d  %8d  %-9s  %-19s  %-6s  %d\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			retry, e.HistoryLen, e.FeedbackLen, e.Outcome, e.Category, e.Label, e.DurationMS)
	}
}

// #endregion table
