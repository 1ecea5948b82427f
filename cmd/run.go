package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pharmareach-cli/internal/aggregate"
	"github.com/sells-group/pharmareach-cli/internal/entity"
	"github.com/sells-group/pharmareach-cli/internal/export"
	"github.com/sells-group/pharmareach-cli/internal/ingest"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/schema"
	"github.com/sells-group/pharmareach-cli/internal/scorer"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest through export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Sources.CommercialPath == "" {
			return eris.New("sources.commercial_path is required (PHARMAREACH_SOURCES_COMMERCIAL_PATH)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loader := ingest.NewLoader(st, runForce)

		stages := []pipeline.Stage{
			{
				Name: "ingest",
				// The two payment sources land in separate tables, so
				// their loads can overlap.
				Run: func(ctx context.Context) (int64, error) {
					var commercial, research int64

					g, gctx := errgroup.WithContext(ctx)
					g.SetLimit(2)
					g.Go(func() error {
						n, err := loader.Load(gctx, schema.CommercialPayments,
							cfg.Sources.CommercialPath, cfg.Sources.CommercialChunk)
						commercial = n
						return err
					})
					if cfg.Sources.ResearchPath != "" {
						g.Go(func() error {
							n, err := loader.Load(gctx, schema.ResearchPayments,
								cfg.Sources.ResearchPath, cfg.Sources.ResearchChunk)
							research = n
							return err
						})
					}
					if err := g.Wait(); err != nil {
						return commercial + research, err
					}
					return commercial + research, nil
				},
			},
		}

		if cfg.Sources.SegmentsPath != "" {
			stages = append(stages, pipeline.Stage{
				Name: "segments",
				Run: func(ctx context.Context) (int64, error) {
					return ingest.LoadSegments(ctx, st, cfg.Sources.SegmentsPath)
				},
			})
		}

		stages = append(stages,
			pipeline.Stage{
				Name: "aggregate",
				Run: func(ctx context.Context) (int64, error) {
					return aggregate.Build(ctx, st)
				},
			},
			pipeline.Stage{
				Name: "consolidate",
				Run: func(ctx context.Context) (int64, error) {
					return entity.Build(ctx, st)
				},
			},
			pipeline.Stage{
				Name: "score",
				Run: func(ctx context.Context) (int64, error) {
					return scorer.Build(ctx, st)
				},
			},
			pipeline.Stage{
				Name: "export",
				Run: func(ctx context.Context) (int64, error) {
					return runExport(ctx, st)
				},
			},
		)

		if err := pipeline.NewEngine(st, stages...).Run(ctx); err != nil {
			if pipeline.IsDegenerateInput(err) {
				zap.L().Warn("pipeline stopped: no data to process", zap.Error(err))
				return nil
			}
			return err
		}

		zap.L().Info("pipeline complete", zap.String("artifact", cfg.Export.Path))
		return nil
	},
}

// runExport writes the scored artifact using the configured path/format.
func runExport(ctx context.Context, st store.Store) (int64, error) {
	entities, err := st.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Export.Path), 0o755); err != nil {
		return 0, eris.Wrap(err, "export: create output dir")
	}

	switch strings.ToLower(cfg.Export.Format) {
	case "xlsx":
		err = export.WriteXLSX(entities, cfg.Export.Path)
	default:
		err = export.WriteCSV(entities, cfg.Export.Path)
	}
	if err != nil {
		return 0, err
	}
	return int64(len(entities)), nil
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-ingest sources even if unchanged")
	rootCmd.AddCommand(runCmd)
}
