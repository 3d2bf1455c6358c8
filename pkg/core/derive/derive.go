// Package derive computes the ratio set and decides, once, which narrative
// sections will be generated.
package derive

import (
	"statement_report/pkg/core/calc"
	"statement_report/pkg/models"
)

// Gate says whether a section is generated or filled with a fixed sentinel.
type Gate struct {
	Run      bool
	Sentinel string
}

// Derivation is the output of the derivation stage.
type Derivation struct {
	Record models.FinancialRecord
	Ratios models.RatioSet
	Gates  map[models.Section]Gate
}

// Derive is total: it never fails and never calls the reasoning service.
// The adjusted sections are gated only on the availability flags set at extraction.
func Derive(record models.FinancialRecord) Derivation {
	gates := make(map[models.Section]Gate, len(models.Sections))
	for _, s := range models.Sections {
		gates[s] = Gate{Run: true}
	}
	if !record.Notes.AdjEBITDAAvailable {
		gates[models.SectionAdjEBITDAOverview] = Gate{Sentinel: models.AdjEBITDANotAvailable}
	}
	if !record.Notes.AdjWorkingCapitalAvailable {
		gates[models.SectionAdjWorkingCapital] = Gate{Sentinel: models.AdjWorkingCapitalNotAvailable}
	}

	return Derivation{
		Record: record,
		Ratios: calc.ComputeAll(record),
		Gates:  gates,
	}
}

// Skipped returns the sections that will not be generated, in report order.
func (d Derivation) Skipped() []models.Section {
	var out []models.Section
	for _, s := range models.Sections {
		if g, ok := d.Gates[s]; ok && !g.Run {
			out = append(out, s)
		}
	}
	return out
}
