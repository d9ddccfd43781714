package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
	"github.com/randalmurphal/contentflow/pkg/contentflow/builtin"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a manifest against the built-in component kinds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := contentflow.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if err := builtin.Catalog(builtin.Env{}).Check(m); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, a := range m.AddOns {
				fmt.Fprintf(out, "%s: %d activators, %d producers, %d mergers, %d renderers\n",
					a.Name, len(a.Activators), len(a.Producers), len(a.Mergers), len(a.Renderers))
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
}
