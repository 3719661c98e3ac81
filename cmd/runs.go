package main

import (
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded import runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		hist, err := openHistory(ctx)
		if err != nil {
			return err
		}
		defer hist.Close() //nolint:errcheck

		runs, err := hist.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("no runs recorded")
			return nil
		}

		for _, r := range runs {
			finished := "-"
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("%s  %-8s  %-9s  created=%d updated=%d failed=%d  started=%s finished=%s  %s\n",
				r.ID, r.Entity, r.Status, r.Created, r.Updated, r.Failed,
				r.StartedAt.Format("2006-01-02 15:04:05"), finished, r.File)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
