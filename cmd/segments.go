package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/ingest"
)

var segmentsPath string

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Load the externally produced cluster/segment table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path := segmentsPath
		if path == "" {
			path = cfg.Sources.SegmentsPath
		}
		if path == "" {
			return eris.New("segments path is required (--csv or PHARMAREACH_SOURCES_SEGMENTS_PATH)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := ingest.LoadSegments(ctx, st, path)
		if err != nil {
			return eris.Wrap(err, "load segments")
		}

		zap.L().Info("segments loaded", zap.Int64("rows", rows))
		return nil
	},
}

func init() {
	segmentsCmd.Flags().StringVar(&segmentsPath, "csv", "", "path to the segments CSV")
	rootCmd.AddCommand(segmentsCmd)
}
