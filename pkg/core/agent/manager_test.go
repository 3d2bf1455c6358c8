package agent

import (
	"context"
	"statement_report/pkg/core/config"
	"statement_report/pkg/core/llm"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider records the name and model it was built with.
type MockProvider struct {
	ProviderName string
	Model        string
}

func (m *MockProvider) Name() string { return m.ProviderName }

func (m *MockProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	return m.ProviderName + ":" + m.Model, nil
}

func mockFactories(names ...string) map[string]Factory {
	out := make(map[string]Factory, len(names))
	for _, n := range names {
		n := n
		out[n] = func(model string) llm.Provider { return &MockProvider{ProviderName: n, Model: model} }
	}
	return out
}

func newTestManager(cfg config.Config) *Manager {
	return NewManagerWithFactories(cfg, mockFactories("gemini", "claude", "deepseek"), nil)
}

func reply(t *testing.T, p llm.Provider) string {
	t.Helper()
	out, err := p.Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	return out
}

func TestGetProvider_ResolutionOrder(t *testing.T) {
	cfg := config.Default()
	cfg.ActiveProvider = "claude"
	cfg.RateLimit.RequestsPerSecond = 0
	cfg.Agents = map[string]config.AgentConfig{
		AgentExtraction: {Provider: "gemini", Model: "gemini-2.0-flash"},
		AgentChat:       {Model: "claude-haiku"},
		AgentNarrative:  {Provider: "qwen"},
	}
	m := newTestManager(cfg)

	p, err := m.GetProvider(AgentExtraction)
	require.NoError(t, err)
	assert.Equal(t, "gemini:gemini-2.0-flash", reply(t, p))

	p, err = m.GetProvider(AgentChat)
	require.NoError(t, err)
	assert.Equal(t, "claude:claude-haiku", reply(t, p))

	// Unknown override falls through to the active provider.
	p, err = m.GetProvider(AgentNarrative)
	require.NoError(t, err)
	assert.Equal(t, "claude:", reply(t, p))
}

func TestGetProvider_Fallback(t *testing.T) {
	cfg := config.Default()
	cfg.ActiveProvider = "openai"
	m := newTestManager(cfg)

	p, err := m.GetProvider(AgentNarrative)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	empty := NewManagerWithFactories(cfg, mockFactories("claude"), nil)
	_, err = empty.GetProvider(AgentNarrative)
	assert.Error(t, err)
}

func TestGetProvider_RateLimitedAndShared(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.RequestsPerSecond = 5
	cfg.RateLimit.Burst = 2
	m := newTestManager(cfg)

	a, err := m.GetProvider(AgentExtraction)
	require.NoError(t, err)
	b, err := m.GetProvider(AgentNarrative)
	require.NoError(t, err)

	ra, ok := a.(*llm.RateLimited)
	require.True(t, ok)
	assert.Same(t, a, b)
	assert.Equal(t, "gemini", ra.Unwrap().Name())
}

func TestSetGlobalProvider(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.RequestsPerSecond = 0
	m := newTestManager(cfg)

	require.NoError(t, m.SetGlobalProvider("deepseek"))
	assert.Equal(t, "deepseek", m.GetActiveProvider())
	p, err := m.GetProvider(AgentChat)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", p.Name())

	assert.Error(t, m.SetGlobalProvider("qwen"))
	assert.Equal(t, "deepseek", m.GetActiveProvider())
	assert.Equal(t, []string{"claude", "deepseek", "gemini"}, m.Available())
}

func TestDefaultFactories(t *testing.T) {
	f := DefaultFactories(config.Secrets{GeminiAPIKey: "g"})
	require.Len(t, f, 4)
	assert.Equal(t, "gemini", f["gemini"]("").Name())
	assert.Equal(t, "gemini-legacy", f["gemini-legacy"]("").Name())
	assert.Equal(t, "claude", f["claude"]("").Name())
	assert.Equal(t, "deepseek", f["deepseek"]("").Name())
	assert.True(t, llm.AcceptsDocument(f["gemini"](""), "application/pdf"))
	assert.False(t, llm.AcceptsDocument(f["claude"](""), "application/pdf"))
}
