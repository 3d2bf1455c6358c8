package models

import "sort"

// Section names one narrative slot of the report.
type Section string

const (
	SectionBusinessOverview        Section = "business_overview"
	SectionKeyFindings             Section = "key_findings"
	SectionIncomeStatementOverview Section = "income_statement_overview"
	SectionBalanceSheetOverview    Section = "balance_sheet_overview"
	SectionAdjEBITDAOverview       Section = "adj_ebitda_overview"
	SectionAdjWorkingCapital       Section = "adj_working_capital_overview"
)

// Sections is the fixed set of narrative slots in report order.
var Sections = []Section{
	SectionBusinessOverview,
	SectionKeyFindings,
	SectionIncomeStatementOverview,
	SectionBalanceSheetOverview,
	SectionAdjEBITDAOverview,
	SectionAdjWorkingCapital,
}

// Fixed texts used in place of generated narrative.
const (
	AdjEBITDANotAvailable         = "Adjusted EBITDA information is not available in the provided document."
	AdjWorkingCapitalNotAvailable = "Adjusted working capital information is not available in the provided document."
	SummaryUnavailable            = "Summary unavailable: the analysis service could not produce this section."
)

// NarrativeSet maps every section to its text. Degraded lists the sections that
// fell back to SummaryUnavailable.
type NarrativeSet struct {
	texts    map[Section]string
	degraded []Section
}

// NewNarrativeSet fills any section missing from texts with SummaryUnavailable and
// marks it degraded, so the set always carries all six sections.
func NewNarrativeSet(texts map[Section]string, degraded []Section) NarrativeSet {
	out := make(map[Section]string, len(Sections))
	marked := make(map[Section]bool, len(degraded))
	for _, s := range degraded {
		marked[s] = true
	}
	for _, s := range Sections {
		t, ok := texts[s]
		if !ok {
			t = SummaryUnavailable
			marked[s] = true
		}
		out[s] = t
	}
	var deg []Section
	for _, s := range Sections {
		if marked[s] {
			deg = append(deg, s)
		}
	}
	return NarrativeSet{texts: out, degraded: deg}
}

func (n NarrativeSet) Text(s Section) string {
	return n.texts[s]
}

// Degraded returns the degraded sections in report order.
func (n NarrativeSet) Degraded() []Section {
	out := make([]Section, len(n.degraded))
	copy(out, n.degraded)
	return out
}

// Texts returns a copy of the section map.
func (n NarrativeSet) Texts() map[Section]string {
	out := make(map[Section]string, len(n.texts))
	for k, v := range n.texts {
		out[k] = v
	}
	return out
}

// SortSections orders sections by report position.
func SortSections(in []Section) {
	pos := make(map[Section]int, len(Sections))
	for i, s := range Sections {
		pos[s] = i
	}
	sort.SliceStable(in, func(i, j int) bool { return pos[in[i]] < pos[in[j]] })
}
