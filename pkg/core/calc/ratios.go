package calc

import (
	"fmt"
	"sort"
	"statement_report/pkg/models"
)

// =============================================================================
// RATIO ENGINE
// =============================================================================

// ZeroPolicy decides the value of a ratio whose denominator is present and zero.
type ZeroPolicy int

const (
	// ZeroIsInfinite is used where unbounded leverage or coverage is itself a signal.
	ZeroIsInfinite ZeroPolicy = iota
	// ZeroIsZero is used for margins, returns and turnovers: nothing to measure against.
	ZeroIsZero
)

func (p ZeroPolicy) String() string {
	if p == ZeroIsInfinite {
		return "infinite"
	}
	return "zero"
}

// RatioDefinition is a single numerator/denominator ratio over record fields.
type RatioDefinition struct {
	Name        models.RatioName
	Label       string
	Numerator   string
	Denominator string
	OnZero      ZeroPolicy
}

// Inputs lists the record fields a ratio reads.
func (d RatioDefinition) Inputs() []string {
	return []string{d.Numerator, d.Denominator}
}

// Definitions holds the fixed ratio table in report order.
var Definitions = []RatioDefinition{
	{models.RatioCurrent, "Current Ratio", models.FieldCurrentAssets, models.FieldCurrentLiabilities, ZeroIsInfinite},
	{models.RatioDebtToEquity, "Debt-to-Equity Ratio", models.FieldTotalLiabilities, models.FieldShareholdersEquity, ZeroIsInfinite},
	{models.RatioGrossMargin, "Gross Margin Ratio", models.FieldGrossProfit, models.FieldNetSales, ZeroIsZero},
	{models.RatioOperatingMargin, "Operating Margin Ratio", models.FieldOperatingIncome, models.FieldNetSales, ZeroIsZero},
	{models.RatioReturnOnAssets, "Return on Assets", models.FieldNetIncome, models.FieldTotalAssets, ZeroIsZero},
	{models.RatioReturnOnEquity, "Return on Equity", models.FieldNetIncome, models.FieldShareholdersEquity, ZeroIsZero},
	// The schema has no average total assets; period-end total assets is used.
	{models.RatioAssetTurnover, "Asset Turnover Ratio", models.FieldNetSales, models.FieldTotalAssets, ZeroIsZero},
	{models.RatioInventoryTurnover, "Inventory Turnover Ratio", models.FieldCostOfGoodsSold, models.FieldAverageInventory, ZeroIsZero},
	// Net sales stands in for net credit sales.
	{models.RatioReceivablesTurnover, "Receivables Turnover Ratio", models.FieldNetSales, models.FieldAverageAccountsReceivable, ZeroIsZero},
	{models.RatioDebt, "Debt Ratio", models.FieldTotalLiabilities, models.FieldTotalAssets, ZeroIsZero},
	{models.RatioInterestCoverage, "Interest Coverage Ratio", models.FieldOperatingIncome, models.FieldInterestExpenses, ZeroIsInfinite},
}

// Definition looks up a ratio by name.
func Definition(name models.RatioName) (RatioDefinition, bool) {
	for _, d := range Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return RatioDefinition{}, false
}

// Divide applies the zero-denominator policy to two present values.
func Divide(numerator, denominator float64, policy ZeroPolicy) models.RatioValue {
	if denominator == 0 {
		if policy == ZeroIsInfinite {
			return models.Infinite()
		}
		return models.Finite(0)
	}
	return models.Finite(numerator / denominator)
}

// Compute evaluates one ratio against the record. It never fails: any absent
// input yields an undefined value with the absent fields listed in Missing.
func Compute(record models.FinancialRecord, def RatioDefinition) models.RatioResult {
	res := models.RatioResult{
		Name:   def.Name,
		Inputs: make(map[string]models.Amount, 2),
	}
	for _, field := range def.Inputs() {
		a, _ := record.Lookup(field)
		res.Inputs[field] = a
		if a.IsAbsent() {
			res.Missing = append(res.Missing, field)
		}
	}
	if len(res.Missing) > 0 {
		sort.Strings(res.Missing)
		res.Value = models.Undefined()
		return res
	}

	num, _ := res.Inputs[def.Numerator].Float()
	den, _ := res.Inputs[def.Denominator].Float()
	res.Value = Divide(num, den, def.OnZero)
	return res
}

// ComputeAll evaluates every required ratio.
func ComputeAll(record models.FinancialRecord) models.RatioSet {
	results := make([]models.RatioResult, 0, len(Definitions))
	for _, def := range Definitions {
		results = append(results, Compute(record, def))
	}
	return models.NewRatioSet(results)
}

// ComputeByName evaluates a single ratio by name.
func ComputeByName(record models.FinancialRecord, name models.RatioName) (models.RatioResult, error) {
	def, ok := Definition(name)
	if !ok {
		return models.RatioResult{}, fmt.Errorf("unknown ratio: %s", name)
	}
	return Compute(record, def), nil
}

// StatementScope reports which statement a ratio draws from: "income_statement",
// "balance_sheet" or "mixed".
func StatementScope(name models.RatioName) string {
	def, ok := Definition(name)
	if !ok {
		return "mixed"
	}
	is, bs := 0, 0
	for _, f := range def.Inputs() {
		switch {
		case models.IsIncomeStatementField(f):
			is++
		case models.IsBalanceSheetField(f):
			bs++
		}
	}
	switch {
	case bs == 0:
		return "income_statement"
	case is == 0:
		return "balance_sheet"
	default:
		return "mixed"
	}
}
