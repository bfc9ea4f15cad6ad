package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent import runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdb, err := a.openSources()
			if err != nil {
				return err
			}
			defer sdb.Close()

			runs, err := sdb.ListRuns(limit)
			if err != nil {
				return withCode(exitStore, err)
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				started := time.Unix(r.StartedAt, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%s  %-20s  %-8s  %s  processed=%d resolved=%d failed=%d skipped=%d\n",
					r.ID, r.AdapterID, r.Status, started, r.Processed, r.Resolved, r.Failed, r.Skipped)
				if r.Error != "" {
					fmt.Fprintf(out, "    %s\n", r.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show (0 = all)")
	return cmd
}
