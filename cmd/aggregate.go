package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/aggregate"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Build per-identifier physician aggregates from the raw tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := aggregate.Build(ctx, st)
		if err != nil {
			if pipeline.IsDegenerateInput(err) {
				zap.L().Warn("no data to aggregate", zap.Error(err))
				return nil
			}
			return eris.Wrap(err, "aggregate")
		}

		zap.L().Info("aggregate complete", zap.Int64("physicians", rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}
