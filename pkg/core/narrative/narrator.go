// Package narrative generates the report's text sections. Each section gets
// its own request carrying only the data slice it is about; a failed section
// degrades to a placeholder and never affects the others.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"statement_report/pkg/core/calc"
	"statement_report/pkg/core/derive"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/core/prompt"
	"statement_report/pkg/core/utils"
	"statement_report/pkg/models"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds in-flight section requests.
const DefaultConcurrency = 6

// ErrEmptyNarrative is returned when the service replies with no visible text.
var ErrEmptyNarrative = errors.New("empty narrative")

// SectionError is one section's failure. It is logged and reported, never returned.
type SectionError struct {
	Section  models.Section
	Attempts int
	Cause    error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("narrative %s failed after %d attempt(s): %v", e.Section, e.Attempts, e.Cause)
}

func (e *SectionError) Unwrap() error { return e.Cause }

// FailureHook observes degraded sections.
type FailureHook func(ctx context.Context, err *SectionError)

type Narrator struct {
	provider    llm.Provider
	prompts     *prompt.Registry
	policy      llm.RetryPolicy
	concurrency int
	onFailure   FailureHook
	logger      *zap.Logger
}

type Option func(*Narrator)

func WithRetryPolicy(p llm.RetryPolicy) Option { return func(n *Narrator) { n.policy = p } }
func WithPrompts(r *prompt.Registry) Option    { return func(n *Narrator) { n.prompts = r } }
func WithFailureHook(h FailureHook) Option     { return func(n *Narrator) { n.onFailure = h } }

func WithConcurrency(limit int) Option {
	return func(n *Narrator) {
		if limit > 0 {
			n.concurrency = limit
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Narrator) {
		if l != nil {
			n.logger = l
		}
	}
}

func New(provider llm.Provider, opts ...Option) *Narrator {
	n := &Narrator{
		provider:    provider,
		prompts:     prompt.Get(),
		policy:      llm.DefaultRetryPolicy(),
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type sectionResult struct {
	section models.Section
	text    string
	err     *SectionError
}

// Narrate fills every section. Gated sections get their sentinel without a
// request. If ctx ends first, unresolved sections become placeholders and
// in-flight results are discarded.
func (n *Narrator) Narrate(ctx context.Context, d derive.Derivation) models.NarrativeSet {
	texts := make(map[models.Section]string, len(models.Sections))
	var degraded []models.Section

	var tasks []models.Section
	for _, s := range models.Sections {
		gate, ok := d.Gates[s]
		if ok && !gate.Run {
			texts[s] = gate.Sentinel
			continue
		}
		tasks = append(tasks, s)
	}

	// Buffered so abandoned workers never block after Narrate returns.
	results := make(chan sectionResult, len(tasks))
	go func() {
		var g errgroup.Group
		g.SetLimit(n.concurrency)
		for _, s := range tasks {
			s := s
			g.Go(func() error {
				results <- n.runSection(ctx, d, s)
				return nil
			})
		}
		_ = g.Wait()
	}()

	pending := len(tasks)
collect:
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			if r.err != nil {
				degraded = append(degraded, r.section)
				n.logger.Warn("narrative section degraded",
					zap.String("section", string(r.section)),
					zap.Int("attempts", r.err.Attempts),
					zap.Error(r.err.Cause))
				if n.onFailure != nil {
					n.onFailure(ctx, r.err)
				}
				continue
			}
			texts[r.section] = r.text
		case <-ctx.Done():
			n.logger.Warn("narrative stage cancelled",
				zap.Int("unresolved", pending), zap.Error(ctx.Err()))
			break collect
		}
	}

	models.SortSections(degraded)
	return models.NewNarrativeSet(texts, degraded)
}

func (n *Narrator) runSection(ctx context.Context, d derive.Derivation, s models.Section) sectionResult {
	if err := ctx.Err(); err != nil {
		return sectionResult{section: s, err: &SectionError{Section: s, Cause: err}}
	}

	vars, err := SectionContext(d, s)
	if err != nil {
		return sectionResult{section: s, err: &SectionError{Section: s, Cause: err}}
	}
	system, user, err := n.prompts.Render(prompt.SectionPromptID(s), vars)
	if err != nil {
		return sectionResult{section: s, err: &SectionError{Section: s, Cause: err}}
	}
	req := llm.Request{SystemPrompt: system, Instruction: user, Mode: llm.ModeText}

	policy := n.policy
	policy.OnRetry = func(err error, wait time.Duration) {
		n.logger.Debug("narrative attempt failed, retrying",
			zap.String("section", string(s)), zap.Error(err), zap.Duration("wait", wait))
	}
	raw, attempts, err := policy.Do(ctx, func(ctx context.Context) (string, error) {
		return n.provider.Generate(ctx, req)
	})
	if err != nil {
		return sectionResult{section: s, err: &SectionError{Section: s, Attempts: attempts, Cause: err}}
	}

	text := utils.CleanMarkdown(raw)
	if !utils.HasMarkdownContent(text) {
		return sectionResult{section: s, err: &SectionError{Section: s, Attempts: attempts, Cause: ErrEmptyNarrative}}
	}
	return sectionResult{section: s, text: text}
}

// SectionContext builds the template variables for one section. Each section
// sees only its own slice of the record.
func SectionContext(d derive.Derivation, s models.Section) (*prompt.PromptExecutionContext, error) {
	ctx := prompt.NewContext()
	rec := d.Record

	switch s {
	case models.SectionBusinessOverview:
		data, err := toJSON(struct {
			CompanyName     string                 `json:"company_name"`
			ReportingPeriod string                 `json:"reporting_period"`
			Currency        string                 `json:"currency"`
			IncomeStatement models.IncomeStatement `json:"income_statement"`
			BalanceSheet    models.BalanceSheet    `json:"balance_sheet"`
		}{rec.CompanyName, rec.ReportingPeriod, rec.Currency, rec.IncomeStatement, rec.BalanceSheet})
		if err != nil {
			return nil, err
		}
		ctx.Set("Data", data)

	case models.SectionKeyFindings:
		data, err := toJSON(rec)
		if err != nil {
			return nil, err
		}
		ratios, err := toJSON(d.Ratios)
		if err != nil {
			return nil, err
		}
		ctx.Set("Data", data).Set("Ratios", ratios)

	case models.SectionIncomeStatementOverview:
		data, err := toJSON(rec.IncomeStatement)
		if err != nil {
			return nil, err
		}
		ratios, err := scopedRatios(d.Ratios, "income_statement")
		if err != nil {
			return nil, err
		}
		ctx.Set("Data", data).Set("Ratios", ratios)

	case models.SectionBalanceSheetOverview:
		data, err := toJSON(rec.BalanceSheet)
		if err != nil {
			return nil, err
		}
		ratios, err := scopedRatios(d.Ratios, "balance_sheet")
		if err != nil {
			return nil, err
		}
		ctx.Set("Data", data).Set("Ratios", ratios)

	case models.SectionAdjEBITDAOverview:
		ctx.Set("Details", rec.Notes.AdjEBITDADetails)

	case models.SectionAdjWorkingCapital:
		ctx.Set("Details", rec.Notes.AdjWorkingCapitalDetails)

	default:
		return nil, fmt.Errorf("unknown section: %s", s)
	}
	return ctx, nil
}

func scopedRatios(set models.RatioSet, scope string) (string, error) {
	subset := set.Subset(func(r models.RatioResult) bool {
		return calc.StatementScope(r.Name) == scope
	})
	return toJSON(models.FlattenRatios(subset))
}

func toJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
