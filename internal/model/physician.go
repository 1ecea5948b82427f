package model

import "strings"

// PhysicianAggregate is one row per raw recipient identifier: summed
// commercial and research spend plus the dominant paying manufacturer.
// Invariant: TotalCents == CommercialCents + ResearchCents.
type PhysicianAggregate struct {
	RecipientID         string
	FirstName           string
	LastName            string
	Specialty           string
	CommercialCents     int64
	ResearchCents       int64
	TotalCents          int64
	PrimaryManufacturer string
}

// FullName joins first and last name with a single space.
func (a PhysicianAggregate) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// PhysicianEntity is one row per resolved human, after consolidating all
// recipient identifiers sharing (full name, specialty).
type PhysicianEntity struct {
	RecipientID         string // reference identifier, first-seen
	FullName            string
	Specialty           string
	City                string
	State               string
	SegmentName         string
	CommercialCents     int64
	ResearchCents       int64
	TotalCents          int64
	PrimaryManufacturer string
	InfluenceRatio      float64
	MfgLoyaltyPct       float64
	LogTotalSpend       float64
	LeadScore           float64
}

// ScientificPct is the research share of total spend as a percentage,
// zero when the entity has no spend at all.
func (e PhysicianEntity) ScientificPct() float64 {
	if e.TotalCents <= 0 {
		return 0
	}
	return float64(e.ResearchCents) / float64(e.TotalCents) * 100
}
