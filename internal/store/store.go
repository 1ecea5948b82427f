// Package store provides persistence for the pipeline's row tables and
// derived tables, with SQLite and PostgreSQL backends.
package store

import (
	"context"

	"github.com/sells-group/pharmareach-cli/internal/model"
)

// SpendGroup is one grouped commercial-spend row: a raw recipient
// identifier with its name, uncategorized specialty text, and summed cents.
type SpendGroup struct {
	RecipientID  string
	FirstName    string
	LastName     string
	RawSpecialty string
	AmountCents  int64
}

// PayerSpend is the summed spend from one payer to one recipient.
type PayerSpend struct {
	RecipientID string
	PayerName   string
	AmountCents int64
}

// Location is the first-seen raw city/state for a recipient identifier.
type Location struct {
	RecipientID string
	City        string
	State       string
}

// EntityFilter restricts entity reads for the dashboard consumption layer.
// Specialty is an exact match; City a case-insensitive substring match.
// Empty fields match everything.
type EntityFilter struct {
	Specialty string
	City      string
}

// Store defines the persistence interface for the HVT pipeline. Each stage
// owns its destination table exclusively; derived tables are replaced
// wholesale via staging + atomic swap, never updated in place.
type Store interface {
	// Bulk ingest
	CreatePaymentStaging(ctx context.Context, table string) error
	InsertPayments(ctx context.Context, table string, rows []model.PaymentRecord) error
	SwapTable(ctx context.Context, staging, live string) error
	GetLoadStamp(ctx context.Context, path string) (*model.SourceStamp, error)
	RecordLoadStamp(ctx context.Context, stamp model.SourceStamp) error
	ReplaceSegments(ctx context.Context, rows []model.Segment) error

	// Aggregation reads
	CommercialSpendGroups(ctx context.Context) ([]SpendGroup, error)
	ResearchSpendByRecipient(ctx context.Context) (map[string]int64, error)
	PayerSpendGroups(ctx context.Context) ([]PayerSpend, error)
	FirstSeenLocations(ctx context.Context) ([]Location, error)
	ListSegments(ctx context.Context) (map[string]model.Segment, error)

	// Derived tables
	ReplaceAggregates(ctx context.Context, rows []model.PhysicianAggregate) error
	ListAggregates(ctx context.Context) ([]model.PhysicianAggregate, error)
	ReplaceEntities(ctx context.Context, rows []model.PhysicianEntity) error
	ListEntities(ctx context.Context, filter EntityFilter) ([]model.PhysicianEntity, error)

	// Operations
	TableCounts(ctx context.Context) (map[string]int64, error)
	CreateStageRun(ctx context.Context, stage string) (*model.StageRun, error)
	CompleteStageRun(ctx context.Context, runID string, status model.RunStatus, rowsOut int64, errMsg string) error
	ListStageRuns(ctx context.Context, limit int) ([]model.StageRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
