// Package sentiment classifies the tone of financial text.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/core/prompt"
	"statement_report/pkg/core/utils"
	"statement_report/pkg/models"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// maxTextChars bounds the text sent in one request.
const maxTextChars = 50000

var (
	ErrEmptyText  = errors.New("sentiment text is empty")
	ErrBadVerdict = errors.New("sentiment reply has no valid label and score")
)

// Result is one classification. Score is the confidence in Label, in [0, 1].
type Result struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

type Analyzer struct {
	provider llm.Provider
	prompts  *prompt.Registry
	policy   llm.RetryPolicy
	logger   *zap.Logger
}

type Option func(*Analyzer)

func WithRetryPolicy(p llm.RetryPolicy) Option { return func(a *Analyzer) { a.policy = p } }
func WithPrompts(r *prompt.Registry) Option    { return func(a *Analyzer) { a.prompts = r } }

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(provider llm.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		prompts:  prompt.Get(),
		policy:   llm.DefaultRetryPolicy(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies text. Long text is truncated before it is sent.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	text = utils.Snippet(text, maxTextChars)

	system, user, err := a.prompts.Render(prompt.PromptIDs.Sentiment, prompt.NewContext().Set("Text", text))
	if err != nil {
		return Result{}, err
	}

	raw, attempts, err := a.policy.Do(ctx, func(ctx context.Context) (string, error) {
		return a.provider.Generate(ctx, llm.Request{SystemPrompt: system, Instruction: user, Mode: llm.ModeJSON})
	})
	if err != nil {
		a.logger.Warn("sentiment request failed", zap.Int("attempts", attempts), zap.Error(err))
		return Result{}, err
	}

	res, err := ParseVerdict(raw)
	if err != nil {
		a.logger.Warn("sentiment reply rejected", zap.String("reply", utils.Snippet(raw, 200)))
		return Result{}, err
	}
	a.logger.Debug("sentiment classified",
		zap.String("label", string(res.Label)), zap.Float64("score", res.Score), zap.Int("attempts", attempts))
	return res, nil
}

// ParseVerdict reads a {"label", "score"} reply. The label is matched
// case-insensitively; a score outside [0, 1] is rejected.
func ParseVerdict(raw string) (Result, error) {
	obj, err := utils.ParseStrictObject(strings.TrimSpace(raw))
	if err != nil {
		if obj, err = utils.RecoverJSONObject(raw); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrBadVerdict, err)
		}
	}

	label, _ := obj["label"].(string)
	res := Result{Label: Label(strings.ToLower(strings.TrimSpace(label)))}
	switch res.Label {
	case Positive, Negative, Neutral:
	default:
		return Result{}, fmt.Errorf("%w: label %q", ErrBadVerdict, label)
	}

	score, ok := number(obj["score"])
	if !ok || math.IsNaN(score) || score < 0 || score > 1 {
		return Result{}, fmt.Errorf("%w: score %v", ErrBadVerdict, obj["score"])
	}
	res.Score = score
	return res, nil
}

func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// ReportText joins a report's generated sections in report order, leaving
// out degraded ones and the fixed not-available texts.
func ReportText(r *models.ReportResult) string {
	if r == nil {
		return ""
	}
	n := r.Narratives()
	skip := make(map[models.Section]bool)
	for _, s := range n.Degraded() {
		skip[s] = true
	}
	var parts []string
	for _, s := range models.Sections {
		t := strings.TrimSpace(n.Text(s))
		if skip[s] || t == "" || t == models.AdjEBITDANotAvailable || t == models.AdjWorkingCapitalNotAvailable {
			continue
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n\n")
}
