// Package export writes the derived PhysicianEntity artifact for the
// dashboard front end.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pharmareach-cli/internal/model"
)

// Header is the artifact column order the front end consumes.
var Header = []string{
	"id", "full_name", "specialty", "city", "state", "segment_name",
	"commercial_spend", "research_spend", "total_spend",
	"primary_manufacturer", "influence_ratio", "mfg_loyalty_pct", "lead_score",
}

// Row renders one entity in Header order. Money renders as decimal
// dollars with two places.
func Row(e model.PhysicianEntity) []string {
	return []string{
		e.RecipientID,
		e.FullName,
		e.Specialty,
		e.City,
		e.State,
		e.SegmentName,
		model.FormatCents(e.CommercialCents),
		model.FormatCents(e.ResearchCents),
		model.FormatCents(e.TotalCents),
		e.PrimaryManufacturer,
		strconv.FormatFloat(e.InfluenceRatio, 'f', -1, 64),
		strconv.FormatFloat(e.MfgLoyaltyPct, 'f', -1, 64),
		strconv.FormatFloat(e.LeadScore, 'f', -1, 64),
	}
}

// WriteCSV writes the artifact to path via a temp file and atomic rename,
// so consumers never observe a partially written artifact.
func WriteCSV(entities []model.PhysicianEntity, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.csv")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return eris.Wrap(err, "export: write header")
	}
	for _, e := range entities {
		if err := w.Write(Row(e)); err != nil {
			tmp.Close()
			return eris.Wrapf(err, "export: write row %s", e.FullName)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "export: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close temp file")
	}

	return eris.Wrapf(os.Rename(tmp.Name(), path), "export: rename to %s", path)
}

// WriteXLSX writes the artifact as a single-sheet workbook, with the same
// temp-then-rename discipline as WriteCSV.
func WriteXLSX(entities []model.PhysicianEntity, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("targets")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range Header {
		hr.AddCell().Value = h
	}
	for _, e := range entities {
		row := sheet.AddRow()
		for _, v := range Row(e) {
			row.AddCell().Value = v
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.xlsx")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := f.Save(tmpName); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return eris.Wrapf(os.Rename(tmpName, path), "export: rename to %s", path)
}
