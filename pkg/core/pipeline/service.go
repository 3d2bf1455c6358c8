package pipeline

import (
	"context"
	"fmt"
	"statement_report/pkg/core/agent"
	"statement_report/pkg/core/chat"
	"statement_report/pkg/core/config"
	"statement_report/pkg/core/extract"
	"statement_report/pkg/core/narrative"
	"statement_report/pkg/core/prompt"
	"statement_report/pkg/core/sentiment"
	"statement_report/pkg/models"

	"go.uber.org/zap"
)

// Service builds the stages for each run from the providers the manager
// currently routes, so a provider switch applies to the next analysis.
type Service struct {
	Manager  *agent.Manager
	Config   config.Config
	Cache    extract.Cache
	Repo     ReportRepository
	Prompts  *prompt.Registry
	Reporter ErrorReporter
	Logger   *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) prompts() *prompt.Registry {
	if s.Prompts == nil {
		return prompt.Get()
	}
	return s.Prompts
}

// Orchestrator returns an orchestrator wired to the current providers.
func (s *Service) Orchestrator() (*Orchestrator, error) {
	extractionProvider, err := s.Manager.GetProvider(agent.AgentExtraction)
	if err != nil {
		return nil, err
	}
	narrativeProvider, err := s.Manager.GetProvider(agent.AgentNarrative)
	if err != nil {
		return nil, err
	}
	policy := s.Config.Retry.Policy()
	log := s.logger()

	exOpts := []extract.Option{
		extract.WithRetryPolicy(policy),
		extract.WithPrompts(s.prompts()),
		extract.WithLogger(log.Named("extract")),
	}
	if s.Cache != nil {
		exOpts = append(exOpts, extract.WithCache(s.Cache))
	}

	nrOpts := []narrative.Option{
		narrative.WithRetryPolicy(policy),
		narrative.WithPrompts(s.prompts()),
		narrative.WithConcurrency(s.Config.Pipeline.NarrativeConcurrency),
		narrative.WithLogger(log.Named("narrative")),
	}
	if s.Reporter != nil {
		nrOpts = append(nrOpts, narrative.WithFailureHook(func(ctx context.Context, err *narrative.SectionError) {
			s.Reporter(ctx, err, map[string]string{"stage": "narrative", "section": string(err.Section)})
		}))
	}

	opts := []Option{
		WithDegradeOnExtractionFailure(s.Config.Pipeline.DegradeOnExtractionFailure),
		WithLogger(log.Named("pipeline")),
	}
	if s.Repo != nil {
		opts = append(opts, WithRepository(s.Repo))
	}
	if s.Reporter != nil {
		opts = append(opts, WithErrorReporter(s.Reporter))
	}
	return NewOrchestrator(
		extract.New(extractionProvider, exOpts...),
		narrative.New(narrativeProvider, nrOpts...),
		opts...,
	), nil
}

// Run analyses one document with the current providers.
func (s *Service) Run(ctx context.Context, in Input) (*Analysis, error) {
	o, err := s.Orchestrator()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return o.Run(ctx, in)
}

// Reply answers a chat turn with the current chat provider.
func (s *Service) Reply(ctx context.Context, history []chat.Message, report *models.ReportResult) (string, error) {
	p, err := s.Manager.GetProvider(agent.AgentChat)
	if err != nil {
		return "", err
	}
	a := chat.NewAssistant(p,
		chat.WithRetryPolicy(s.Config.Retry.Policy()),
		chat.WithPrompts(s.prompts()),
		chat.WithLogger(s.logger().Named("chat")))
	return a.Reply(ctx, history, report)
}

// Sentiment classifies text with the current sentiment provider.
func (s *Service) Sentiment(ctx context.Context, text string) (sentiment.Result, error) {
	p, err := s.Manager.GetProvider(agent.AgentSentiment)
	if err != nil {
		return sentiment.Result{}, err
	}
	a := sentiment.New(p,
		sentiment.WithRetryPolicy(s.Config.Retry.Policy()),
		sentiment.WithPrompts(s.prompts()),
		sentiment.WithLogger(s.logger().Named("sentiment")))
	return a.Analyze(ctx, text)
}
