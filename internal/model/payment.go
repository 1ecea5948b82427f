// Package model defines the domain types shared across pipeline stages.
package model

import "time"

// PaymentRecord is one disclosed transaction from a payments source file.
// Immutable once ingested; both the general (commercial) and research
// source files map onto this shape, research rows simply leave the fields
// their file does not carry empty.
type PaymentRecord struct {
	PayerName   string
	AmountCents int64
	Specialty   string
	City        string
	State       string
	Nature      string
	RecipientID string
	FirstName   string
	LastName    string
	PaymentDate string
}

// SourceStamp identifies a loaded source file for the ingest cache.
// A source whose size and mtime are unchanged since the recorded load
// is skipped on re-ingest.
type SourceStamp struct {
	Path      string
	SizeBytes int64
	ModTime   time.Time
	Rows      int64
	LoadedAt  time.Time
}

// Segment is one row of the externally produced cluster/segment table,
// keyed by recipient identifier. InfluenceRatio is expected in [0, 1];
// the scorer clamps out-of-range input.
type Segment struct {
	RecipientID    string
	SegmentName    string
	InfluenceRatio float64
	MfgLoyaltyPct  float64
}
