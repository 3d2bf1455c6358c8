package agent

import (
	"fmt"
	"sort"
	"statement_report/pkg/core/config"
	"statement_report/pkg/core/llm"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Agent types routed by the manager.
const (
	AgentExtraction = "extraction"
	AgentNarrative  = "narrative"
	AgentChat       = "chat"
	AgentSentiment  = "sentiment"
)

// FallbackProvider is used when neither an override nor the active provider resolves.
const FallbackProvider = "gemini"

// Factory builds a provider for a model; an empty model means the provider default.
type Factory func(model string) llm.Provider

type Manager struct {
	mu        sync.RWMutex
	config    config.Config
	factories map[string]Factory
	limiters  map[string]*rate.Limiter
	built     map[string]llm.Provider
	logger    *zap.Logger
}

// DefaultFactories wires the built-in providers to the configured secrets.
func DefaultFactories(s config.Secrets) map[string]Factory {
	return map[string]Factory{
		"gemini": func(model string) llm.Provider {
			return &llm.GeminiProvider{Model: model, APIKey: s.GeminiAPIKey}
		},
		"gemini-legacy": func(model string) llm.Provider {
			return &llm.LegacyGeminiProvider{Model: model, APIKey: s.GeminiAPIKey}
		},
		"claude": func(model string) llm.Provider {
			return &llm.ClaudeProvider{Model: model, APIKey: s.AnthropicAPIKey}
		},
		"deepseek": func(model string) llm.Provider {
			return &llm.DeepSeekProvider{Model: model, APIKey: s.DeepSeekAPIKey}
		},
	}
}

func NewManager(cfg config.Config, logger *zap.Logger) *Manager {
	return NewManagerWithFactories(cfg, DefaultFactories(cfg.Secrets), logger)
}

// NewManagerWithFactories is NewManager with an explicit provider set.
func NewManagerWithFactories(cfg config.Config, factories map[string]Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:    cfg,
		factories: factories,
		limiters:  make(map[string]*rate.Limiter),
		built:     make(map[string]llm.Provider),
		logger:    logger,
	}
}

// GetProvider resolves the provider for agentType: per-agent override first,
// then the active provider, then FallbackProvider. The result is rate limited
// per provider name, shared across agent types.
func (m *Manager) GetProvider(agentType string) (llm.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, model := m.resolve(agentType)
	if name == "" {
		return nil, fmt.Errorf("no provider available for agent %s", agentType)
	}
	key := name + "|" + model
	if p, ok := m.built[key]; ok {
		return p, nil
	}

	var p llm.Provider = m.factories[name](model)
	if rl := m.config.RateLimit; rl.RequestsPerSecond > 0 {
		limiter, ok := m.limiters[name]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), max(rl.Burst, 1))
			m.limiters[name] = limiter
		}
		p = llm.WithLimiter(p, limiter)
	}
	m.built[key] = p
	m.logger.Debug("provider resolved",
		zap.String("agent", agentType), zap.String("provider", name), zap.String("model", model))
	return p, nil
}

func (m *Manager) resolve(agentType string) (string, string) {
	agentCfg := m.config.Agents[agentType]
	if agentCfg.Provider != "" {
		if _, ok := m.factories[agentCfg.Provider]; ok {
			return agentCfg.Provider, agentCfg.Model
		}
		m.logger.Warn("agent override names unknown provider",
			zap.String("agent", agentType), zap.String("provider", agentCfg.Provider))
	}
	// A model pinned without a provider only applies to the active provider.
	if _, ok := m.factories[m.config.ActiveProvider]; ok {
		return m.config.ActiveProvider, agentCfg.Model
	}
	if _, ok := m.factories[FallbackProvider]; ok {
		return FallbackProvider, ""
	}
	return "", ""
}

func (m *Manager) SetGlobalProvider(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[name]; !ok {
		return fmt.Errorf("provider %s not found", name)
	}
	m.config.ActiveProvider = name
	m.logger.Info("global provider switched", zap.String("provider", name))
	return nil
}

func (m *Manager) GetActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}

// Available lists registered provider names, sorted.
func (m *Manager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.factories))
	for n := range m.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
