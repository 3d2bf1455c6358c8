package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Amount is a statement value that is either a finite number or explicitly absent.
// The zero value is absent, so a zero-value FinancialRecord is the fully absent record.
type Amount struct {
	value   float64
	present bool
}

// Value returns a present Amount. Non-finite inputs produce an absent Amount.
func Value(v float64) Amount {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}
	}
	return Amount{value: v, present: true}
}

// Absent returns the absent marker.
func Absent() Amount {
	return Amount{}
}

// Float returns the numeric value and whether it is present.
func (a Amount) Float() (float64, bool) {
	return a.value, a.present
}

func (a Amount) IsAbsent() bool {
	return !a.present
}

func (a Amount) String() string {
	if !a.present {
		return "absent"
	}
	return fmt.Sprintf("%g", a.value)
}

// MarshalJSON writes absent values as null.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.present {
		return []byte("null"), nil
	}
	return json.Marshal(a.value)
}

// UnmarshalJSON accepts only the canonical forms: a number or null.
// Lenient forms ("1,200 USD") are handled by the extraction parser, not here.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("amount must be a number or null: %w", err)
	}
	*a = Value(v)
	return nil
}

// Field is a named statement value, used when a statement is iterated generically.
type Field struct {
	Name   string
	Amount Amount
}

// IncomeStatement holds the income statement fields of the extraction schema.
type IncomeStatement struct {
	NetSales          Amount `json:"net_sales"`
	CostOfGoodsSold   Amount `json:"cost_of_goods_sold"`
	GrossProfit       Amount `json:"gross_profit"`
	OperatingExpenses Amount `json:"operating_expenses"`
	OperatingIncome   Amount `json:"operating_income"`
	InterestExpenses  Amount `json:"interest_expenses"`
	NetIncome         Amount `json:"net_income"`
}

// Fields lists the income statement in schema order.
func (s IncomeStatement) Fields() []Field {
	return []Field{
		{FieldNetSales, s.NetSales},
		{FieldCostOfGoodsSold, s.CostOfGoodsSold},
		{FieldGrossProfit, s.GrossProfit},
		{FieldOperatingExpenses, s.OperatingExpenses},
		{FieldOperatingIncome, s.OperatingIncome},
		{FieldInterestExpenses, s.InterestExpenses},
		{FieldNetIncome, s.NetIncome},
	}
}

// Set assigns a field by schema name; it reports false for unknown names.
func (s *IncomeStatement) Set(name string, a Amount) bool {
	switch name {
	case FieldNetSales:
		s.NetSales = a
	case FieldCostOfGoodsSold:
		s.CostOfGoodsSold = a
	case FieldGrossProfit:
		s.GrossProfit = a
	case FieldOperatingExpenses:
		s.OperatingExpenses = a
	case FieldOperatingIncome:
		s.OperatingIncome = a
	case FieldInterestExpenses:
		s.InterestExpenses = a
	case FieldNetIncome:
		s.NetIncome = a
	default:
		return false
	}
	return true
}

// BalanceSheet holds the balance sheet fields of the extraction schema.
type BalanceSheet struct {
	CurrentAssets             Amount `json:"current_assets"`
	TotalAssets               Amount `json:"total_assets"`
	CurrentLiabilities        Amount `json:"current_liabilities"`
	TotalLiabilities          Amount `json:"total_liabilities"`
	ShareholdersEquity        Amount `json:"shareholders_equity"`
	AverageInventory          Amount `json:"average_inventory"`
	AverageAccountsReceivable Amount `json:"average_accounts_receivable"`
}

// Fields lists the balance sheet in schema order.
func (s BalanceSheet) Fields() []Field {
	return []Field{
		{FieldCurrentAssets, s.CurrentAssets},
		{FieldTotalAssets, s.TotalAssets},
		{FieldCurrentLiabilities, s.CurrentLiabilities},
		{FieldTotalLiabilities, s.TotalLiabilities},
		{FieldShareholdersEquity, s.ShareholdersEquity},
		{FieldAverageInventory, s.AverageInventory},
		{FieldAverageAccountsReceivable, s.AverageAccountsReceivable},
	}
}

// Set assigns a field by schema name; it reports false for unknown names.
func (s *BalanceSheet) Set(name string, a Amount) bool {
	switch name {
	case FieldCurrentAssets:
		s.CurrentAssets = a
	case FieldTotalAssets:
		s.TotalAssets = a
	case FieldCurrentLiabilities:
		s.CurrentLiabilities = a
	case FieldTotalLiabilities:
		s.TotalLiabilities = a
	case FieldShareholdersEquity:
		s.ShareholdersEquity = a
	case FieldAverageInventory:
		s.AverageInventory = a
	case FieldAverageAccountsReceivable:
		s.AverageAccountsReceivable = a
	default:
		return false
	}
	return true
}

// Notes carries the availability flags for the adjusted metrics.
// The flags are set once during extraction and never inferred afterwards.
type Notes struct {
	AdjEBITDAAvailable         bool   `json:"adj_ebitda_available"`
	AdjEBITDADetails           string `json:"adj_ebitda_details"`
	AdjWorkingCapitalAvailable bool   `json:"adj_working_capital_available"`
	AdjWorkingCapitalDetails   string `json:"adj_working_capital_details"`
}

// FinancialRecord is the canonical extraction result for one analysis run.
type FinancialRecord struct {
	CompanyName     string          `json:"company_name"`
	ReportingPeriod string          `json:"reporting_period"`
	Currency        string          `json:"currency"`
	IncomeStatement IncomeStatement `json:"income_statement"`
	BalanceSheet    BalanceSheet    `json:"balance_sheet"`
	Notes           Notes           `json:"notes"`
}

// EmptyRecord is the structurally valid record with every field absent.
func EmptyRecord() FinancialRecord {
	return FinancialRecord{}
}

// Lookup resolves a schema field name across both statements.
func (r FinancialRecord) Lookup(name string) (Amount, bool) {
	for _, f := range r.IncomeStatement.Fields() {
		if f.Name == name {
			return f.Amount, true
		}
	}
	for _, f := range r.BalanceSheet.Fields() {
		if f.Name == name {
			return f.Amount, true
		}
	}
	return Amount{}, false
}

// Schema field names, shared by the parser, ratio engine and prompts.
const (
	FieldNetSales          = "net_sales"
	FieldCostOfGoodsSold   = "cost_of_goods_sold"
	FieldGrossProfit       = "gross_profit"
	FieldOperatingExpenses = "operating_expenses"
	FieldOperatingIncome   = "operating_income"
	FieldInterestExpenses  = "interest_expenses"
	FieldNetIncome         = "net_income"

	FieldCurrentAssets             = "current_assets"
	FieldTotalAssets               = "total_assets"
	FieldCurrentLiabilities        = "current_liabilities"
	FieldTotalLiabilities          = "total_liabilities"
	FieldShareholdersEquity        = "shareholders_equity"
	FieldAverageInventory          = "average_inventory"
	FieldAverageAccountsReceivable = "average_accounts_receivable"
)

// IncomeStatementFields and BalanceSheetFields list the schema in order.
var (
	IncomeStatementFields = []string{
		FieldNetSales, FieldCostOfGoodsSold, FieldGrossProfit, FieldOperatingExpenses,
		FieldOperatingIncome, FieldInterestExpenses, FieldNetIncome,
	}
	BalanceSheetFields = []string{
		FieldCurrentAssets, FieldTotalAssets, FieldCurrentLiabilities, FieldTotalLiabilities,
		FieldShareholdersEquity, FieldAverageInventory, FieldAverageAccountsReceivable,
	}
)

// IsIncomeStatementField reports whether name belongs to the income statement.
func IsIncomeStatementField(name string) bool {
	for _, f := range IncomeStatementFields {
		if f == name {
			return true
		}
	}
	return false
}

// IsBalanceSheetField reports whether name belongs to the balance sheet.
func IsBalanceSheetField(name string) bool {
	for _, f := range BalanceSheetFields {
		if f == name {
			return true
		}
	}
	return false
}
