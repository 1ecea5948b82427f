// Package schema is the single definition of every source file layout the
// pipeline consumes. Each stage validates against these definitions instead
// of scattering column-name strings through the code.
package schema

import "strings"

// Field keys map source columns onto PaymentRecord fields.
const (
	FieldPayer       = "payer"
	FieldAmount      = "amount"
	FieldSpecialty   = "specialty"
	FieldCity        = "city"
	FieldState       = "state"
	FieldNature      = "nature"
	FieldRecipientID = "recipient_id"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldPaymentDate = "payment_date"
)

// Column binds one source-file column to a record field.
type Column struct {
	Name     string // normalized header name in the source file
	Field    string // Field* key
	Required bool
}

// Source describes one delimited input file and its destination table.
type Source struct {
	Name      string
	Table     string
	ChunkSize int // default batch size in rows
	Columns   []Column
}

// ColumnForField returns the column bound to the given field key.
func (s Source) ColumnForField(field string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

// CommercialPayments is the general (non-research) payments disclosure file.
var CommercialPayments = Source{
	Name:      "commercial",
	Table:     "payments",
	ChunkSize: 200_000,
	Columns: []Column{
		{Name: "Applicable_Manufacturer_or_Applicable_GPO_Making_Payment_Name", Field: FieldPayer, Required: true},
		{Name: "Total_Amount_of_Payment_USDollars", Field: FieldAmount, Required: true},
		{Name: "Covered_Recipient_Specialty_1", Field: FieldSpecialty, Required: true},
		{Name: "Recipient_City", Field: FieldCity, Required: true},
		{Name: "Recipient_State", Field: FieldState, Required: true},
		{Name: "Nature_of_Payment_or_Transfer_of_Value", Field: FieldNature, Required: true},
		{Name: "Covered_Recipient_Profile_ID", Field: FieldRecipientID, Required: true},
		{Name: "Covered_Recipient_First_Name", Field: FieldFirstName, Required: true},
		{Name: "Covered_Recipient_Last_Name", Field: FieldLastName, Required: true},
		{Name: "Date_of_Payment", Field: FieldPaymentDate, Required: true},
	},
}

// ResearchPayments is the research payments disclosure file. It carries
// fewer columns than the general file; absent fields stay empty.
var ResearchPayments = Source{
	Name:      "research",
	Table:     "research_payments",
	ChunkSize: 100_000,
	Columns: []Column{
		{Name: "Applicable_Manufacturer_or_Applicable_GPO_Making_Payment_Name", Field: FieldPayer, Required: true},
		{Name: "Total_Amount_of_Payment_USDollars", Field: FieldAmount, Required: true},
		{Name: "Covered_Recipient_Profile_ID", Field: FieldRecipientID, Required: true},
		{Name: "Recipient_City", Field: FieldCity, Required: true},
		{Name: "Recipient_State", Field: FieldState, Required: true},
		{Name: "Covered_Recipient_Specialty_1", Field: FieldSpecialty, Required: true},
		{Name: "Date_of_Payment", Field: FieldPaymentDate, Required: true},
	},
}

// Segments is the externally produced cluster/segment table, keyed by
// recipient identifier.
var Segments = Source{
	Name:      "segments",
	Table:     "segments",
	ChunkSize: 50_000,
	Columns: []Column{
		{Name: "id", Field: FieldRecipientID, Required: true},
		{Name: "segment_name", Field: "segment_name", Required: true},
		{Name: "influence_ratio", Field: "influence_ratio", Required: true},
		{Name: "mfg_loyalty_pct", Field: "mfg_loyalty_pct", Required: false},
	},
}

// NormalizeColumn strips whitespace and punctuation that would make a
// header unsafe as a query identifier. Spaces become underscores to match
// the disclosure file convention.
func NormalizeColumn(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HeaderIndex maps a normalized CSV header row to column positions.
// The second return value lists required columns missing from the header.
func HeaderIndex(src Source, header []string) (map[string]int, []string) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[NormalizeColumn(h)] = i
	}

	idx := make(map[string]int, len(src.Columns))
	var missing []string
	for _, c := range src.Columns {
		i, ok := pos[NormalizeColumn(c.Name)]
		if !ok {
			if c.Required {
				missing = append(missing, c.Name)
			}
			continue
		}
		idx[c.Field] = i
	}
	return idx, missing
}
