// Package chat answers follow-up questions about a report.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/core/prompt"
	"statement_report/pkg/core/utils"
	"statement_report/pkg/models"
	"strings"

	"go.uber.org/zap"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrEmptyHistory    = errors.New("chat history is empty")
	ErrLastNotFromUser = errors.New("last chat message must come from the user")
	ErrEmptyReply      = errors.New("assistant returned an empty reply")
)

type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

type Assistant struct {
	provider llm.Provider
	prompts  *prompt.Registry
	policy   llm.RetryPolicy
	logger   *zap.Logger
}

type Option func(*Assistant)

func WithRetryPolicy(p llm.RetryPolicy) Option { return func(a *Assistant) { a.policy = p } }
func WithPrompts(r *prompt.Registry) Option    { return func(a *Assistant) { a.prompts = r } }

func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAssistant(provider llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{
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

// Reply answers the last user message. report may be nil.
func (a *Assistant) Reply(ctx context.Context, history []Message, report *models.ReportResult) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	if history[len(history)-1].Role != RoleUser {
		return "", ErrLastNotFromUser
	}

	reportText := ""
	if report != nil {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode report: %w", err)
		}
		reportText = string(b)
	}
	vars := prompt.NewContext().
		Set("Report", reportText).
		Set("Transcript", Transcript(history))

	system, user, err := a.prompts.Render(prompt.PromptIDs.ChatAssistant, vars)
	if err != nil {
		return "", err
	}

	raw, attempts, err := a.policy.Do(ctx, func(ctx context.Context) (string, error) {
		return a.provider.Generate(ctx, llm.Request{SystemPrompt: system, Instruction: user, Mode: llm.ModeText})
	})
	if err != nil {
		a.logger.Warn("chat reply failed", zap.Int("attempts", attempts), zap.Error(err))
		return "", err
	}
	text := utils.CleanMarkdown(raw)
	if !utils.HasMarkdownContent(text) {
		return "", ErrEmptyReply
	}
	return text, nil
}

// Transcript renders history as "User: ..." / "Assistant: ..." lines.
func Transcript(history []Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		speaker := "User"
		if m.Role == RoleAssistant {
			speaker = "Assistant"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
	}
	return b.String()
}
