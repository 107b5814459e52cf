package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wabridge/internal/audit"
	"wabridge/internal/config"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect or prune the interaction journal",
	}

	var (
		limit  int
		asJSON bool
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent interactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSESSION\tKIND\tINTENT\tSENTIMENT\tNEXT\tFALLBACK\tSEND")
			for _, it := range items {
				fallback := "-"
				if it.Fallback {
					fallback = it.FallbackReason
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					it.CreatedAt.Local().Format(time.DateTime), it.SessionID, it.Kind,
					it.Intent, it.Sentiment, it.NextAction, fallback, it.SendStatus)
			}
			return tw.Flush()
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "number of interactions to show")
	recent.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete interactions older than journal.retentionDays now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openJournalWith(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ret, err := audit.NewRetention(store, cfg.Journal.RetentionDays, cfg.Journal.PurgeSchedule, logger)
			if err != nil {
				return err
			}
			n, err := ret.PurgeNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d interaction(s) older than %d days\n", n, cfg.Journal.RetentionDays)
			return nil
		},
	}

	cmd.AddCommand(recent, purge)
	return cmd
}

func openJournal() (*audit.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openJournalWith(cfg)
}

func openJournalWith(cfg *config.Config) (*audit.Store, error) {
	if !cfg.Journal.Enabled {
		return nil, fmt.Errorf("journal is disabled (set journal.enabled to true)")
	}
	return audit.Open(cfg.Journal.DBPath, logger)
}
