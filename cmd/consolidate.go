package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/entity"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Resolve duplicate physician identifiers into one entity each",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := entity.Build(ctx, st)
		if err != nil {
			if pipeline.IsDegenerateInput(err) {
				zap.L().Warn("no aggregates to consolidate", zap.Error(err))
				return nil
			}
			return eris.Wrap(err, "consolidate")
		}

		zap.L().Info("consolidate complete", zap.Int64("entities", rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}
