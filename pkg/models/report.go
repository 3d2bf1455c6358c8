package models

import (
	"encoding/json"
	"fmt"
)

// ReportResult is the assembled output of one analysis. It is built once by the
// orchestrator and read by renderers.
type ReportResult struct {
	record     FinancialRecord
	ratios     RatioSet
	narratives NarrativeSet
}

func NewReportResult(record FinancialRecord, ratios RatioSet, narratives NarrativeSet) *ReportResult {
	return &ReportResult{record: record, ratios: ratios, narratives: narratives}
}

func (r *ReportResult) Record() FinancialRecord  { return r.record }
func (r *ReportResult) Ratios() RatioSet         { return r.ratios }
func (r *ReportResult) Narratives() NarrativeSet { return r.narratives }

type reportWire struct {
	BusinessOverview          string          `json:"business_overview"`
	KeyFindings               string          `json:"key_findings"`
	IncomeStatementOverview   string          `json:"income_statement_overview"`
	BalanceSheetOverview      string          `json:"balance_sheet_overview"`
	AdjEBITDAOverview         string          `json:"adj_ebitda_overview"`
	AdjWorkingCapitalOverview string          `json:"adj_working_capital_overview"`
	ExtractedData             FinancialRecord `json:"extracted_data"`
	CalculatedRatios          RatioSet        `json:"calculated_ratios"`
}

// MarshalJSON writes the report shape consumed by the rendering side.
func (r *ReportResult) MarshalJSON() ([]byte, error) {
	n := r.narratives
	return json.Marshal(reportWire{
		BusinessOverview:          n.Text(SectionBusinessOverview),
		KeyFindings:               n.Text(SectionKeyFindings),
		IncomeStatementOverview:   n.Text(SectionIncomeStatementOverview),
		BalanceSheetOverview:      n.Text(SectionBalanceSheetOverview),
		AdjEBITDAOverview:         n.Text(SectionAdjEBITDAOverview),
		AdjWorkingCapitalOverview: n.Text(SectionAdjWorkingCapital),
		ExtractedData:             r.record,
		CalculatedRatios:          r.ratios,
	})
}

// UnmarshalJSON restores a stored report. Degraded markers are not part of the wire
// shape; sections equal to SummaryUnavailable are marked degraded again.
func (r *ReportResult) UnmarshalJSON(data []byte) error {
	var w reportWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	texts := map[Section]string{
		SectionBusinessOverview:        w.BusinessOverview,
		SectionKeyFindings:             w.KeyFindings,
		SectionIncomeStatementOverview: w.IncomeStatementOverview,
		SectionBalanceSheetOverview:    w.BalanceSheetOverview,
		SectionAdjEBITDAOverview:       w.AdjEBITDAOverview,
		SectionAdjWorkingCapital:       w.AdjWorkingCapitalOverview,
	}
	var degraded []Section
	for s, t := range texts {
		if t == SummaryUnavailable {
			degraded = append(degraded, s)
		}
	}
	r.record = w.ExtractedData
	r.ratios = w.CalculatedRatios
	r.narratives = NewNarrativeSet(texts, degraded)
	return nil
}
