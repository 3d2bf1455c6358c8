package extract

import (
	"fmt"
	"statement_report/pkg/core/utils"
	"statement_report/pkg/models"
	"strings"
)

// StageExtraction names the stage in SchemaError.
const StageExtraction = "extraction"

const snippetLen = 200

// Parse turns raw service output into a FinancialRecord.
// It tries a strict decode, then exactly one recovery pass; output that still
// does not decode to an object is a SchemaError. Field-level repair never fails.
func Parse(raw string) (models.FinancialRecord, error) {
	obj, err := utils.ParseStrictObject(strings.TrimSpace(raw))
	if err != nil {
		obj, err = utils.RecoverJSONObject(raw)
		if err != nil {
			return models.FinancialRecord{}, &SchemaError{
				Stage:   StageExtraction,
				Snippet: utils.Snippet(raw, snippetLen),
				Cause:   err,
			}
		}
	}

	if reason, ok := unreadable(obj); ok {
		return models.FinancialRecord{}, fmt.Errorf("%w: %s", ErrDocumentUnreadable, reason)
	}

	return fromObject(obj), nil
}

// unreadable detects the {"error": "..."} reply the extraction prompt asks for.
func unreadable(obj map[string]interface{}) (string, bool) {
	v, ok := obj["error"]
	if !ok || v == nil {
		return "", false
	}
	if _, hasData := obj["income_statement"]; hasData {
		return "", false
	}
	return ParseString(v), true
}

func fromObject(obj map[string]interface{}) models.FinancialRecord {
	var rec models.FinancialRecord
	rec.CompanyName = ParseString(obj["company_name"])
	rec.ReportingPeriod = ParseString(obj["reporting_period"])
	rec.Currency = ParseString(obj["currency"])

	is := section(obj, "income_statement")
	for _, name := range models.IncomeStatementFields {
		rec.IncomeStatement.Set(name, ParseAmount(is[name]))
	}

	bs := section(obj, "balance_sheet")
	for _, name := range models.BalanceSheetFields {
		rec.BalanceSheet.Set(name, ParseAmount(bs[name]))
	}

	notes := section(obj, "notes")
	rec.Notes = models.Notes{
		AdjEBITDAAvailable:         ParseBool(notes["adj_ebitda_available"]),
		AdjEBITDADetails:           ParseString(notes["adj_ebitda_details"]),
		AdjWorkingCapitalAvailable: ParseBool(notes["adj_working_capital_available"]),
		AdjWorkingCapitalDetails:   ParseString(notes["adj_working_capital_details"]),
	}
	return rec
}

// section returns a nested object, or an empty one when it is missing or malformed.
func section(obj map[string]interface{}, key string) map[string]interface{} {
	if m, ok := obj[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}
