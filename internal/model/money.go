package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var centFactor = decimal.NewFromInt(100)

// ParseAmountCents parses a dollar amount string from a source file into
// integer cents. Sub-cent precision is rounded half-up. Negative amounts
// are rejected; payment disclosures are non-negative by contract.
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("money: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, eris.Wrapf(err, "money: parse amount %q", s)
	}
	if d.IsNegative() {
		return 0, eris.Errorf("money: negative amount %q", s)
	}
	return d.Mul(centFactor).Round(0).IntPart(), nil
}

// FormatCents renders integer cents as a dollar string with two decimal
// places, e.g. 123450 -> "1234.50".
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(centFactor).StringFixed(2)
}

// CentsToDollars converts integer cents to a float64 dollar value for the
// logarithmic scoring math.
func CentsToDollars(cents int64) float64 {
	return float64(cents) / 100
}
