package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute lead scores over the consolidated entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := scorer.Build(ctx, st)
		if err != nil {
			if pipeline.IsDegenerateInput(err) {
				zap.L().Warn("no entities to score", zap.Error(err))
				return nil
			}
			return eris.Wrap(err, "score")
		}

		zap.L().Info("score complete", zap.Int64("entities", rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
