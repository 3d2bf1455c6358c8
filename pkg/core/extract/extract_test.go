package extract

import (
	"context"
	"encoding/json"
	"errors"
	"statement_report/pkg/core/ingest"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/models"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider records requests and answers with GenerateFunc.
type MockProvider struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (string, error)
	DocTypes     map[string]bool

	mu       sync.Mutex
	Requests []llm.Request
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, req)
}

func (m *MockProvider) SupportsDocument(mimeType string) bool { return m.DocTypes[mimeType] }

// MockCache is an in-memory Cache.
type MockCache struct {
	records map[string]models.FinancialRecord
}

func (c *MockCache) Get(ctx context.Context, digest string) (models.FinancialRecord, bool, error) {
	rec, ok := c.records[digest]
	return rec, ok, nil
}

func (c *MockCache) Put(ctx context.Context, digest string, rec models.FinancialRecord) error {
	if c.records == nil {
		c.records = map[string]models.FinancialRecord{}
	}
	c.records[digest] = rec
	return nil
}

const goodOutput = `{
  "company_name": "Acme Corp",
  "reporting_period": "FY2023",
  "currency": "USD",
  "income_statement": {"net_sales": 1000, "cost_of_goods_sold": 600, "gross_profit": 400,
    "operating_expenses": 300, "operating_income": 100, "interest_expenses": 0, "net_income": 80},
  "balance_sheet": {"current_assets": 500, "total_assets": 2000, "current_liabilities": 250,
    "total_liabilities": 800, "shareholders_equity": 1200, "average_inventory": null,
    "average_accounts_receivable": null},
  "notes": {"adj_ebitda_available": true, "adj_ebitda_details": "Adds back restructuring of 20",
    "adj_working_capital_available": false, "adj_working_capital_details": ""}
}`

func fastPolicy(attempts int) llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		RequestTimeout:  time.Second,
	}
}

func pdfDoc() ingest.Document {
	return ingest.Document{
		Name:      "fs.pdf",
		MediaType: ingest.MediaPDF,
		Data:      []byte("%PDF-1.4 ..."),
		Text:      "Net sales 1000",
		Digest:    "abc123",
	}
}

func amount(t *testing.T, a models.Amount) float64 {
	t.Helper()
	v, ok := a.Float()
	require.True(t, ok, "amount is absent")
	return v
}

// ==== Parse ====

func TestParse_Strict(t *testing.T) {
	rec, err := Parse(goodOutput)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", rec.CompanyName)
	assert.Equal(t, 1000.0, amount(t, rec.IncomeStatement.NetSales))
	assert.Equal(t, 0.0, amount(t, rec.IncomeStatement.InterestExpenses))
	assert.True(t, rec.BalanceSheet.AverageInventory.IsAbsent())
	assert.True(t, rec.Notes.AdjEBITDAAvailable)
	assert.False(t, rec.Notes.AdjWorkingCapitalAvailable)
}

func TestParse_RecoversProseAndTrailingCommas(t *testing.T) {
	raw := "Here is the data you asked for:\n```json\n" +
		`{"company_name": "Acme", "income_statement": {"net_sales": 1000,}, "balance_sheet": {},}` +
		"\n```\nThanks!"
	rec, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.CompanyName)
	assert.Equal(t, 1000.0, amount(t, rec.IncomeStatement.NetSales))
	assert.True(t, rec.BalanceSheet.TotalAssets.IsAbsent())
}

func TestParse_FieldRepair(t *testing.T) {
	raw := `{"income_statement": {
		"net_sales": "1,200 USD",
		"cost_of_goods_sold": "",
		"gross_profit": "n/a",
		"operating_expenses": "$1.5 million",
		"operating_income": "(350)",
		"interest_expenses": "-12.5",
		"net_income": true
	}}`
	rec, err := Parse(raw)
	require.NoError(t, err)

	is := rec.IncomeStatement
	assert.Equal(t, 1200.0, amount(t, is.NetSales))
	assert.True(t, is.CostOfGoodsSold.IsAbsent())
	assert.True(t, is.GrossProfit.IsAbsent())
	assert.Equal(t, 1500000.0, amount(t, is.OperatingExpenses))
	assert.Equal(t, -350.0, amount(t, is.OperatingIncome))
	assert.Equal(t, -12.5, amount(t, is.InterestExpenses))
	assert.True(t, is.NetIncome.IsAbsent())
	assert.True(t, rec.BalanceSheet.CurrentAssets.IsAbsent())
}

func TestParse_SchemaError(t *testing.T) {
	for _, raw := range []string{"", "I am unable to help with that.", "[1, 2]", "{{{{"} {
		_, err := Parse(raw)
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr, "input %q", raw)
		assert.Equal(t, StageExtraction, schemaErr.Stage)
	}
}

func TestParse_Unreadable(t *testing.T) {
	_, err := Parse(`{"error": "unreadable"}`)
	assert.ErrorIs(t, err, ErrDocumentUnreadable)
}

func TestParse_Deterministic(t *testing.T) {
	raw := "prose {\"income_statement\": {\"net_sales\": \"2 bn\",},}"
	a, errA := Parse(raw)
	b, errB := Parse(raw)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, 2e9, amount(t, a.IncomeStatement.NetSales))
}

func TestParse_Idempotent(t *testing.T) {
	rec, err := Parse(goodOutput)
	require.NoError(t, err)

	serialized, err := json.Marshal(rec)
	require.NoError(t, err)
	again, err := Parse(string(serialized))
	require.NoError(t, err)
	assert.Equal(t, rec, again)

	empty, err := json.Marshal(models.EmptyRecord())
	require.NoError(t, err)
	back, err := Parse(string(empty))
	require.NoError(t, err)
	assert.Equal(t, models.EmptyRecord(), back)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in     interface{}
		want   float64
		absent bool
	}{
		{nil, 0, true},
		{42.0, 42, false},
		{json.Number("7.5"), 7.5, false},
		{"  ", 0, true},
		{"-", 0, true},
		{"USD 3,400", 3400, false},
		{"3.4k", 3400, false},
		{"12 thousand", 12000, false},
		{"€ 2.5 billion", 2.5e9, false},
		{"1,200 USD", 1200, false},
		{"(1,200)", -1200, false},
		{"1.2e6", 1.2e6, false},
		{"1e400", 0, true},
		{json.Number("1e400"), 0, true},
		{"2023: 1,500", 1500, false},
		{"FY2023 revenue 1.2 million", 1.2e6, false},
		{"FY2022 -40, FY2023 1,500", 1500, false},
		{"2022: 100; 2023: -50", -50, false},
		{[]interface{}{1.0}, 0, true},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if tc.absent {
			assert.True(t, got.IsAbsent(), "%v", tc.in)
			continue
		}
		v, ok := got.Float()
		assert.True(t, ok, "%v", tc.in)
		assert.InDelta(t, tc.want, v, 1e-9, "%v", tc.in)
	}
}

func TestParse_OutOfRangeNumberOnlySpoilsItsField(t *testing.T) {
	raw := `{"income_statement":{"net_sales":1e400,"net_income":80},"balance_sheet":{"current_assets":500}}`

	rec, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, rec.IncomeStatement.NetSales.IsAbsent())

	ni, ok := rec.IncomeStatement.NetIncome.Float()
	require.True(t, ok)
	assert.Equal(t, 80.0, ni)

	ca, ok := rec.BalanceSheet.CurrentAssets.Float()
	require.True(t, ok)
	assert.Equal(t, 500.0, ca)
}

func TestParseBoolAndString_JSONNumber(t *testing.T) {
	assert.True(t, ParseBool(json.Number("1")))
	assert.False(t, ParseBool(json.Number("0")))
	assert.Equal(t, "2023", ParseString(json.Number("2023")))
}

// ==== Extractor ====

func TestExtract_InlineDocument(t *testing.T) {
	p := &MockProvider{
		DocTypes: map[string]bool{ingest.MediaPDF: true},
		GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
			return goodOutput, nil
		},
	}
	rec, err := New(p, WithRetryPolicy(fastPolicy(3))).Extract(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", rec.CompanyName)

	require.Len(t, p.Requests, 1)
	req := p.Requests[0]
	assert.Equal(t, llm.ModeJSON, req.Mode)
	require.NotNil(t, req.Document)
	assert.Equal(t, ingest.MediaPDF, req.Document.MIMEType)
	assert.Empty(t, req.Context)
	assert.Contains(t, req.Instruction, "average_accounts_receivable")
}

func TestExtract_TextOnlyProviderGetsTextLayer(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return goodOutput, nil
	}}
	_, err := New(p, WithRetryPolicy(fastPolicy(3))).Extract(context.Background(), pdfDoc())
	require.NoError(t, err)

	require.Len(t, p.Requests, 1)
	assert.Nil(t, p.Requests[0].Document)
	assert.Contains(t, p.Requests[0].Context, "Net sales 1000")
}

func TestExtract_NoReadablePayload(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		t.Fatal("service must not be called")
		return "", nil
	}}
	doc := ingest.Document{Name: "scan.png", MediaType: ingest.MediaPNG, Data: []byte{1}}

	_, err := New(p).Extract(context.Background(), doc)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, KindPermanent, extErr.Kind)
	assert.Equal(t, 0, extErr.Attempts)
	assert.ErrorIs(t, err, ErrNoReadablePayload)
}

func TestExtract_TransientRetriesThenFails(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return "", &llm.StatusError{Provider: "mock", Code: 503, Body: "overloaded"}
	}}
	_, err := New(p, WithRetryPolicy(fastPolicy(3))).Extract(context.Background(), pdfDoc())

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, KindTransient, extErr.Kind)
	assert.Equal(t, 3, extErr.Attempts)
	assert.Len(t, p.Requests, 3)
}

func TestExtract_TransientThenSuccess(t *testing.T) {
	calls := 0
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("Error 429, Status: RESOURCE_EXHAUSTED")
		}
		return goodOutput, nil
	}}
	rec, err := New(p, WithRetryPolicy(fastPolicy(3))).Extract(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "FY2023", rec.ReportingPeriod)
	assert.Equal(t, 2, calls)
}

func TestExtract_SchemaErrorIsNotRetried(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return "Sorry, I cannot produce JSON for this.", nil
	}}
	_, err := New(p, WithRetryPolicy(fastPolicy(5))).Extract(context.Background(), pdfDoc())

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, KindPermanent, extErr.Kind)
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
	assert.Len(t, p.Requests, 1)
}

func TestExtract_UnreadableIsPermanent(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return `{"error": "unreadable"}`, nil
	}}
	_, err := New(p, WithRetryPolicy(fastPolicy(5))).Extract(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrDocumentUnreadable)
	assert.Len(t, p.Requests, 1)
}

func TestExtract_CacheHitSkipsService(t *testing.T) {
	cache := &MockCache{}
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return goodOutput, nil
	}}
	ex := New(p, WithCache(cache), WithRetryPolicy(fastPolicy(1)))

	first, err := ex.Extract(context.Background(), pdfDoc())
	require.NoError(t, err)
	second, err := ex.Extract(context.Background(), pdfDoc())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, p.Requests, 1)
}
