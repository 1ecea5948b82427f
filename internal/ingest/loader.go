// Package ingest streams oversized delimited disclosure files into the row
// store in bounded-memory chunks.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/schema"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

// Loader bulk-loads payment source files.
type Loader struct {
	store store.Store
	force bool // bypass the load cache
}

// NewLoader creates a Loader. With force, the load cache is ignored and
// the source is always re-ingested.
func NewLoader(st store.Store, force bool) *Loader {
	return &Loader{store: st, force: force}
}

// Load streams the source file at path into its destination table in
// chunks of chunkSize rows (src.ChunkSize when zero). Batches accumulate
// in a staging table; only a fully loaded staging table replaces the live
// one, so a mid-stream failure never leaves a partial live table.
// Returns the number of rows loaded.
func (l *Loader) Load(ctx context.Context, src schema.Source, path string, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = src.ChunkSize
	}

	log := zap.L().With(
		zap.String("source", src.Name),
		zap.String("path", path),
	)

	stamp, err := Fingerprint(path)
	if err != nil {
		return 0, &pipeline.MissingSourceError{Source: path, Err: err}
	}

	if !l.force {
		prev, err := l.store.GetLoadStamp(ctx, path)
		if err != nil {
			return 0, err
		}
		if Unchanged(stamp, prev) {
			log.Info("source unchanged since last load, skipping",
				zap.Int64("rows", prev.Rows),
				zap.Time("loaded_at", prev.LoadedAt),
			)
			return prev.Rows, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, &pipeline.MissingSourceError{Source: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: read header of %s", path)
	}

	idx, missing := schema.HeaderIndex(src, header)
	if len(missing) > 0 {
		return 0, &pipeline.SchemaMismatchError{Source: src.Name, Columns: missing}
	}

	staging := src.Table + "_staging"
	if err := l.store.CreatePaymentStaging(ctx, staging); err != nil {
		return 0, err
	}

	progress := rate.Sometimes{Interval: 5 * time.Second}
	batch := make([]model.PaymentRecord, 0, chunkSize)
	var total, skipped int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.store.InsertPayments(ctx, staging, batch); err != nil {
			return err
		}
		total += int64(len(batch))
		batch = batch[:0]
		progress.Do(func() {
			log.Info("ingest progress", zap.Int64("rows", total))
		})
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "ingest: cancelled")
		}

		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, eris.Wrapf(err, "ingest: read %s", path)
		}

		rec, ok := recordFromRow(src, idx, row)
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, rec)

		if len(batch) >= chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	if err := l.store.SwapTable(ctx, staging, src.Table); err != nil {
		return total, err
	}
	if err := l.store.RecordLoadStamp(ctx, stampNow(stamp, total)); err != nil {
		return total, err
	}

	log.Info("ingest complete",
		zap.Int64("rows", total),
		zap.Int64("skipped", skipped),
	)
	return total, nil
}

// recordFromRow maps one CSV row onto a PaymentRecord. Rows whose amount
// is unparseable or negative are dropped; the disclosure data is the source
// of truth and a malformed amount cannot be repaired here.
func recordFromRow(src schema.Source, idx map[string]int, row []string) (model.PaymentRecord, bool) {
	field := func(key string) string {
		i, ok := idx[key]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	cents, err := model.ParseAmountCents(field(schema.FieldAmount))
	if err != nil {
		return model.PaymentRecord{}, false
	}

	rec := model.PaymentRecord{
		PayerName:   field(schema.FieldPayer),
		AmountCents: cents,
		Specialty:   field(schema.FieldSpecialty),
		City:        field(schema.FieldCity),
		State:       field(schema.FieldState),
		Nature:      field(schema.FieldNature),
		RecipientID: field(schema.FieldRecipientID),
		FirstName:   field(schema.FieldFirstName),
		LastName:    field(schema.FieldLastName),
		PaymentDate: field(schema.FieldPaymentDate),
	}
	if rec.RecipientID == "" {
		return model.PaymentRecord{}, false
	}
	return rec, true
}

// LoadSegments reads the externally produced cluster/segment CSV and
// replaces the segments table. The file is small enough to read whole.
func LoadSegments(ctx context.Context, st store.Store, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &pipeline.MissingSourceError{Source: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: read segments header %s", path)
	}
	idx, missing := schema.HeaderIndex(schema.Segments, header)
	if len(missing) > 0 {
		return 0, &pipeline.SchemaMismatchError{Source: schema.Segments.Name, Columns: missing}
	}

	var rows []model.Segment
	var skipped int64
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, eris.Wrapf(err, "ingest: read segments %s", path)
		}

		field := func(key string) string {
			i, ok := idx[key]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		influence, err := strconv.ParseFloat(field("influence_ratio"), 64)
		if err != nil {
			skipped++
			continue
		}
		loyalty, _ := strconv.ParseFloat(field("mfg_loyalty_pct"), 64)

		seg := model.Segment{
			RecipientID:    field(schema.FieldRecipientID),
			SegmentName:    field("segment_name"),
			InfluenceRatio: influence,
			MfgLoyaltyPct:  loyalty,
		}
		if seg.RecipientID == "" {
			skipped++
			continue
		}
		rows = append(rows, seg)
	}

	if err := st.ReplaceSegments(ctx, rows); err != nil {
		return 0, err
	}

	zap.L().Info("segments loaded",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int64("skipped", skipped),
	)
	return int64(len(rows)), nil
}
