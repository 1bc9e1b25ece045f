package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/titanics/rxpse/pkg/store"
)

var statsJobID uint64

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Inspect the match-event log",
	Long: `Print the contents of the match-event log configured as store_path.
With --job the events recorded for one job are listed individually.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Uint64Var(&statsJobID, "job", 0, "List events for one job id")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorePath == "" || cfg.StorePath == ":memory:" {
		return fmt.Errorf("stats requires a persistent store_path in the config")
	}

	st, err := store.New(store.Config{Path: cfg.StorePath})
	if err != nil {
		return fmt.Errorf("opening match-event store: %w", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	if statsJobID != 0 {
		events, err := st.Events(statsJobID)
		if err != nil {
			return fmt.Errorf("reading events for job %d: %w", statsJobID, err)
		}
		if len(events) == 0 {
			fmt.Fprintf(out, "no events recorded for job %d\n", statsJobID)
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(out, "job=%d subset=%d rule=%d end=%d at=%s\n",
				e.JobID, e.SubsetID, e.RuleID, e.To, e.At.Format("2006-01-02T15:04:05.000"))
		}
		return nil
	}

	n, err := st.Count()
	if err != nil {
		return fmt.Errorf("counting events: %w", err)
	}
	fmt.Fprintf(out, "%d match events in %s\n", n, cfg.StorePath)
	return nil
}
