package pipeline

import (
	"context"
	"statement_report/pkg/core/agent"
	"statement_report/pkg/core/chat"
	"statement_report/pkg/core/config"
	"statement_report/pkg/core/llm"
	"statement_report/pkg/core/sentiment"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T, providers map[string]*MockProvider) *Service {
	t.Helper()
	factories := map[string]agent.Factory{}
	for name, p := range providers {
		p := p
		factories[name] = func(model string) llm.Provider { return p }
	}
	cfg := config.Default()
	cfg.ActiveProvider = "gemini"
	cfg.RateLimit.RequestsPerSecond = 0
	cfg.Retry = config.RetryConfig{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		RequestTimeout:  time.Second,
	}
	return &Service{
		Manager: agent.NewManagerWithFactories(cfg, factories, nil),
		Config:  cfg,
	}
}

func TestService_SwitchAppliesToNextRun(t *testing.T) {
	gemini := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		if req.Mode == llm.ModeJSON {
			return scenarioJSON, nil
		}
		return "from gemini", nil
	}}
	claude := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		if req.Mode == llm.ModeJSON {
			return scenarioJSON, nil
		}
		return "from claude", nil
	}}
	s := testService(t, map[string]*MockProvider{"gemini": gemini, "claude": claude})

	a, err := s.Run(context.Background(), csvInput)
	require.NoError(t, err)
	assert.Equal(t, StateAssembled, a.State())
	assert.Equal(t, 5, gemini.Calls())

	require.NoError(t, s.Manager.SetGlobalProvider("claude"))
	_, err = s.Run(context.Background(), csvInput)
	require.NoError(t, err)
	assert.Equal(t, 5, claude.Calls())
	assert.Equal(t, 5, gemini.Calls())
}

func TestService_ReportsNarrativeFailures(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		if req.Mode == llm.ModeJSON {
			return scenarioJSON, nil
		}
		return "", nil
	}}
	s := testService(t, map[string]*MockProvider{"gemini": p})
	var stages []string
	s.Reporter = func(ctx context.Context, err error, tags map[string]string) {
		stages = append(stages, tags["stage"])
	}

	a, err := s.Run(context.Background(), csvInput)
	require.NoError(t, err)
	assert.Len(t, a.Result.Narratives().Degraded(), 4)
	assert.Len(t, stages, 4)
	for _, st := range stages {
		assert.Equal(t, "narrative", st)
	}
}

func TestService_Reply(t *testing.T) {
	p := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return "Answer.", nil
	}}
	s := testService(t, map[string]*MockProvider{"gemini": p})
	out, err := s.Reply(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "q"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Answer.", out)
}

func TestService_SentimentUsesItsOwnRoute(t *testing.T) {
	gemini := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return `{"label": "neutral", "score": 0.5}`, nil
	}}
	claude := &MockProvider{GenerateFunc: func(ctx context.Context, req llm.Request) (string, error) {
		return `{"label": "positive", "score": 0.8}`, nil
	}}
	s := testService(t, map[string]*MockProvider{"gemini": gemini, "claude": claude})
	s.Config.Agents[agent.AgentSentiment] = config.AgentConfig{Provider: "claude"}
	s.Manager = agent.NewManagerWithFactories(s.Config, map[string]agent.Factory{
		"gemini": func(string) llm.Provider { return gemini },
		"claude": func(string) llm.Provider { return claude },
	}, nil)

	res, err := s.Sentiment(context.Background(), "Record quarter.")
	require.NoError(t, err)
	assert.Equal(t, sentiment.Positive, res.Label)
	assert.Equal(t, 1, claude.Calls())
	assert.Equal(t, 0, gemini.Calls())
}
