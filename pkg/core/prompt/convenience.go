package prompt

import "statement_report/pkg/models"

// PromptIDs contains all known prompt identifiers
var PromptIDs = struct {
	Extraction string

	// Narrative sections
	BusinessOverview          string
	KeyFindings               string
	IncomeStatementOverview   string
	BalanceSheetOverview      string
	AdjEBITDAOverview         string
	AdjWorkingCapitalOverview string

	ChatAssistant string
	Sentiment     string
}{
	Extraction: "extraction.financial_record",

	BusinessOverview:          "narrative.business_overview",
	KeyFindings:               "narrative.key_findings",
	IncomeStatementOverview:   "narrative.income_statement_overview",
	BalanceSheetOverview:      "narrative.balance_sheet_overview",
	AdjEBITDAOverview:         "narrative.adj_ebitda_overview",
	AdjWorkingCapitalOverview: "narrative.adj_working_capital_overview",

	ChatAssistant: "chat.assistant",
	Sentiment:     "sentiment.financial",
}

// SectionPromptID returns the prompt ID for a narrative section.
func SectionPromptID(s models.Section) string {
	return "narrative." + string(s)
}
