package narrative

import (
	"context"
	"errors"
	"statement_report/pkg/core/derive"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/models"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider answers narrative requests through GenerateFunc and records them.
type MockProvider struct {
	GenerateFunc func(ctx context.Context, req llm.Request) (string, error)

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

func (m *MockProvider) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func fastPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		RequestTimeout:  time.Second,
	}
}

func scenario(ebitda, workingCapital bool) derive.Derivation {
	var rec models.FinancialRecord
	rec.CompanyName = "Acme Corp"
	rec.IncomeStatement.NetSales = models.Value(1000)
	rec.IncomeStatement.GrossProfit = models.Value(400)
	rec.IncomeStatement.OperatingIncome = models.Value(100)
	rec.IncomeStatement.InterestExpenses = models.Value(0)
	rec.BalanceSheet.CurrentAssets = models.Value(500)
	rec.BalanceSheet.CurrentLiabilities = models.Value(250)
	rec.Notes.AdjEBITDAAvailable = ebitda
	rec.Notes.AdjEBITDADetails = "EBITDA adjusted for restructuring"
	rec.Notes.AdjWorkingCapitalAvailable = workingCapital
	rec.Notes.AdjWorkingCapitalDetails = "Working capital adjusted for factoring"
	return derive.Derive(rec)
}

func echo(ctx context.Context, req llm.Request) (string, error) {
	return "Generated: " + firstLine(req.Instruction), nil
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func TestNarrate_AllSectionsGenerated(t *testing.T) {
	p := &MockProvider{GenerateFunc: echo}
	set := New(p, WithRetryPolicy(fastPolicy())).Narrate(context.Background(), scenario(true, true))

	assert.Equal(t, len(models.Sections), p.count())
	assert.Empty(t, set.Degraded())
	for _, s := range models.Sections {
		assert.True(t, strings.HasPrefix(set.Text(s), "Generated: "), "section %s", s)
	}
	for _, req := range p.Requests {
		assert.Equal(t, llm.ModeText, req.Mode)
	}
}

func TestNarrate_UnavailableAdjustedSectionsAreNotRequested(t *testing.T) {
	p := &MockProvider{GenerateFunc: echo}
	set := New(p, WithRetryPolicy(fastPolicy())).Narrate(context.Background(), scenario(false, false))

	assert.Equal(t, 4, p.count())
	assert.Equal(t, models.AdjEBITDANotAvailable, set.Text(models.SectionAdjEBITDAOverview))
	assert.Equal(t, models.AdjWorkingCapitalNotAvailable, set.Text(models.SectionAdjWorkingCapital))
	assert.Empty(t, set.Degraded())
	for _, req := range p.Requests {
		assert.NotContains(t, req.Instruction, "EBITDA adjusted for restructuring")
		assert.NotContains(t, req.Instruction, "Working capital adjusted for factoring")
	}
}

func TestNarrate_OneFailureIsIsolated(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.Instruction, "provide key findings") {
			return "", errors.New("model refused")
		}
		return echo(ctx, req)
	}}

	var hooked []*SectionError
	var mu sync.Mutex
	n := New(p,
		WithRetryPolicy(fastPolicy()),
		WithFailureHook(func(ctx context.Context, err *SectionError) {
			mu.Lock()
			hooked = append(hooked, err)
			mu.Unlock()
		}),
	)
	set := n.Narrate(context.Background(), scenario(true, true))

	assert.Equal(t, []models.Section{models.SectionKeyFindings}, set.Degraded())
	assert.Equal(t, models.SummaryUnavailable, set.Text(models.SectionKeyFindings))
	generated := 0
	for _, s := range models.Sections {
		if strings.HasPrefix(set.Text(s), "Generated: ") {
			generated++
		}
	}
	assert.Equal(t, 5, generated)

	require.Len(t, hooked, 1)
	assert.Equal(t, models.SectionKeyFindings, hooked[0].Section)
	// A non-transient failure is not retried.
	assert.Equal(t, 1, hooked[0].Attempts)
}

func TestNarrate_EmptyReplyDegrades(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return "```\n```", nil
	}}
	set := New(p, WithRetryPolicy(fastPolicy())).Narrate(context.Background(), scenario(false, false))
	assert.Len(t, set.Degraded(), 4)
	assert.Equal(t, models.AdjEBITDANotAvailable, set.Text(models.SectionAdjEBITDAOverview))
}

func TestNarrate_CancellationDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{}, 1)

	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.Instruction, "business overview") {
			started <- struct{}{}
			<-release // ignores ctx, like a hung service
			return "late", nil
		}
		return echo(ctx, req)
	}}

	policy := fastPolicy()
	policy.RequestTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.NarrativeSet, 1)
	go func() {
		done <- New(p, WithRetryPolicy(policy)).Narrate(ctx, scenario(true, true))
	}()

	<-started
	cancel()

	select {
	case set := <-done:
		assert.Equal(t, models.SummaryUnavailable, set.Text(models.SectionBusinessOverview))
		assert.Contains(t, set.Degraded(), models.SectionBusinessOverview)
		for _, s := range models.Sections {
			assert.NotEmpty(t, set.Text(s))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Narrate blocked after cancellation")
	}
}

func TestSectionContext_Scoping(t *testing.T) {
	d := scenario(true, true)

	is, err := SectionContext(d, models.SectionIncomeStatementOverview)
	require.NoError(t, err)
	isData := is.Variables["Data"].(string)
	isRatios := is.Variables["Ratios"].(string)
	assert.Contains(t, isData, "net_sales")
	assert.NotContains(t, isData, "current_assets")
	assert.NotContains(t, isData, "Acme Corp")
	assert.Contains(t, isRatios, "gross_margin_ratio")
	assert.Contains(t, isRatios, "interest_coverage_ratio")
	assert.NotContains(t, isRatios, "current_ratio")
	assert.NotContains(t, isRatios, "return_on_assets_ratio")

	bs, err := SectionContext(d, models.SectionBalanceSheetOverview)
	require.NoError(t, err)
	bsData := bs.Variables["Data"].(string)
	bsRatios := bs.Variables["Ratios"].(string)
	assert.Contains(t, bsData, "current_assets")
	assert.NotContains(t, bsData, "net_sales")
	assert.Contains(t, bsRatios, "current_ratio")
	assert.NotContains(t, bsRatios, "gross_margin_ratio")
	assert.NotContains(t, bsRatios, "net_sales")

	adj, err := SectionContext(d, models.SectionAdjEBITDAOverview)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"Details": "EBITDA adjusted for restructuring"}, adj.Variables)

	kf, err := SectionContext(d, models.SectionKeyFindings)
	require.NoError(t, err)
	assert.Contains(t, kf.Variables["Ratios"].(string), "debt_ratio")
	assert.Contains(t, kf.Variables["Data"].(string), "Acme Corp")

	_, err = SectionContext(d, "cash_flow_overview")
	assert.Error(t, err)
}
