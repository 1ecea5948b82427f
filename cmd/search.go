package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/search"
)

var (
	searchSpecialty string
	searchCity      string
	searchLimit     int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Rank high-value targets by specialty and city",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit := searchLimit
		if limit <= 0 {
			limit = cfg.Search.TopN
		}

		res, err := search.Run(ctx, st, search.Query{
			Specialty: searchSpecialty,
			City:      searchCity,
			Limit:     limit,
		})
		if err != nil {
			return err
		}

		if res.Matched == 0 {
			fmt.Println("No physicians matched the given filters.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tNAME\tSPECIALTY\tCITY\tSTATE\tTOTAL SPEND\tSCIENTIFIC %\tSCORE")
		for i, t := range res.Targets {
			e := t.Entity
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t$%s\t%.1f%%\t%.1f\n",
				i+1, e.FullName, e.Specialty, e.City, e.State,
				model.FormatCents(e.TotalCents), t.ScientificPct, e.LeadScore)
		}
		w.Flush()

		fmt.Printf("\nMatched %d physicians", res.Matched)
		if res.DominantPayer != "" {
			fmt.Printf("; dominant manufacturer: %s", res.DominantPayer)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSpecialty, "specialty", "", "exact specialty bucket (e.g. Oncology)")
	searchCmd.Flags().StringVar(&searchCity, "city", "", "case-insensitive city substring")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max targets to show (default from config)")
	rootCmd.AddCommand(searchCmd)
}
