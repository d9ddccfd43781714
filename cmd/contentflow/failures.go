package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
)

func newFailuresCmd(g *globalFlags) *cobra.Command {
	var (
		path   string
		filter journal.Filter
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List failures recorded in a SQLite journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				s, err := g.settings()
				if err != nil {
					return err
				}
				path = s.JournalPath
			}
			if path == "" {
				return errors.New("no journal: set journal.path in the config or pass --journal")
			}

			j, err := journal.NewSQLiteJournal(path)
			if err != nil {
				return err
			}
			defer j.Close()

			failures, err := j.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range failures {
				fmt.Fprintf(out, "%s  %-9s %-16s %-9s %s\n",
					f.OccurredAt.Local().Format(time.DateTime), f.Kind, f.ComponentID, f.Category, f.Message)
			}
			fmt.Fprintf(out, "%d failures\n", len(failures))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "journal", "", "journal database (default journal.path from the config)")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "only this kind (producer, merger, renderer, activator)")
	cmd.Flags().StringVar(&filter.ComponentID, "component", "", "only this component id")
	cmd.Flags().StringVar(&filter.EventID, "event", "", "only this event id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "show at most this many (0 shows all)")

	return cmd
}
