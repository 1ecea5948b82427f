package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show table counts and recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.TableCounts(ctx)
		if err != nil {
			return err
		}

		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tROWS")
		for _, t := range tables {
			fmt.Fprintf(w, "%s\t%d\n", t, counts[t])
		}
		w.Flush()

		runs, err := st.ListStageRuns(ctx, statusRuns)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("\nNo pipeline runs recorded.")
			return nil
		}

		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tSTATUS\tROWS\tSTARTED\tDURATION")
		for _, r := range runs {
			dur := "-"
			if r.FinishedAt != nil {
				dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.Stage, r.Status, r.RowsOut,
				r.StartedAt.Format("2006-01-02 15:04:05"), dur)
		}
		w.Flush()
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
