package model

import "time"

// RunStatus is the lifecycle state of one pipeline stage execution.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageRun is one entry in the pipeline run ledger.
type StageRun struct {
	ID         string
	Stage      string
	Status     RunStatus
	RowsOut    int64
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}
