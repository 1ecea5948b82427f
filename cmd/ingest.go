package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/ingest"
	"github.com/sells-group/pharmareach-cli/internal/schema"
)

var (
	ingestCommercialPath string
	ingestResearchPath   string
	ingestForce          bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Bulk-load payment disclosure files into the row store",
	Long: `Streams the commercial payments CSV (and, with --research, the research
payments CSV) into the row store in bounded-memory chunks. Unchanged
sources are skipped via the load cache unless --force is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		commercial := ingestCommercialPath
		if commercial == "" {
			commercial = cfg.Sources.CommercialPath
		}
		if commercial == "" {
			return eris.New("commercial source path is required (--commercial or PHARMAREACH_SOURCES_COMMERCIAL_PATH)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loader := ingest.NewLoader(st, ingestForce)

		rows, err := loader.Load(ctx, schema.CommercialPayments, commercial, cfg.Sources.CommercialChunk)
		if err != nil {
			return eris.Wrap(err, "ingest commercial")
		}
		zap.L().Info("commercial payments loaded", zap.Int64("rows", rows))

		research := ingestResearchPath
		if research == "" {
			research = cfg.Sources.ResearchPath
		}
		if research != "" {
			rows, err := loader.Load(ctx, schema.ResearchPayments, research, cfg.Sources.ResearchChunk)
			if err != nil {
				return eris.Wrap(err, "ingest research")
			}
			zap.L().Info("research payments loaded", zap.Int64("rows", rows))
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCommercialPath, "commercial", "", "path to the commercial payments CSV")
	ingestCmd.Flags().StringVar(&ingestResearchPath, "research", "", "path to the research payments CSV")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-ingest even if the source is unchanged")
	rootCmd.AddCommand(ingestCmd)
}
