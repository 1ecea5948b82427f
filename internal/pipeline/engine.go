package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

// Stage is one sequential pipeline step. Run returns the number of rows
// written to the stage's destination table.
type Stage struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Engine executes stages strictly in order, recording each execution in
// the pipeline_runs ledger. A failing stage aborts the run; recovery is
// restart-from-stage-start, never resume-from-checkpoint.
type Engine struct {
	store  store.Store
	stages []Stage
}

// NewEngine creates an Engine over the given stages.
func NewEngine(st store.Store, stages ...Stage) *Engine {
	return &Engine{store: st, stages: stages}
}

// Run executes all stages sequentially.
func (e *Engine) Run(ctx context.Context) error {
	for _, stage := range e.stages {
		if err := e.runStage(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runStage(ctx context.Context, stage Stage) error {
	log := zap.L().With(zap.String("stage", stage.Name))

	run, err := e.store.CreateStageRun(ctx, stage.Name)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create run for stage %s", stage.Name)
	}

	start := time.Now()
	log.Info("stage started")

	rows, err := stage.Run(ctx)
	if err != nil {
		if cErr := e.store.CompleteStageRun(ctx, run.ID, model.RunStatusFailed, rows, err.Error()); cErr != nil {
			log.Warn("failed to record stage failure", zap.Error(cErr))
		}
		return eris.Wrapf(err, "pipeline: stage %s", stage.Name)
	}

	if err := e.store.CompleteStageRun(ctx, run.ID, model.RunStatusComplete, rows, ""); err != nil {
		return eris.Wrapf(err, "pipeline: complete run for stage %s", stage.Name)
	}

	log.Info("stage complete",
		zap.Int64("rows", rows),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return nil
}
