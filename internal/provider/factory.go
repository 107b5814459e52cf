package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"wabridge/internal/config"
	"wabridge/internal/domain"
)

// ProviderConstructor is a function that creates a provider from a config entry.
type ProviderConstructor func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Provider

// Factory creates and caches completion providers from config.
type Factory struct {
	cfg          *config.Config
	client       *http.Client
	logger       *slog.Logger
	constructors map[string]ProviderConstructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors
// registered. client is shared by every provider it builds.
func NewFactory(cfg *config.Config, client *http.Client, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		client:       client,
		logger:       logger,
		constructors: make(map[string]ProviderConstructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by kind.
func (f *Factory) RegisterConstructor(kind string, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[kind] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["openai"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, HTTPClient: client, Logger: logger})
	}
	f.constructors["ollama"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, HTTPClient: client, Logger: logger})
	}
	f.constructors["claude"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Provider {
		return NewClaude(ClaudeConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, HTTPClient: client, Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is empty.
// Created providers are cached so the same instance is reused across calls.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	kind := pc.KindOr(name)
	ctor, found := f.constructors[kind]
	if !found {
		return nil, fmt.Errorf("provider %s: no constructor registered for kind %q", name, kind)
	}

	p := ctor(pc, f.client, f.logger)
	f.cache[name] = p
	return p, nil
}

// Build returns the provider the relay should use: the configured failover
// chain when one is set, otherwise the default provider.
func (f *Factory) Build() (domain.Provider, error) {
	chain := f.cfg.General.FailoverChain
	if len(chain) == 0 {
		return f.Get("")
	}
	providers := make([]domain.Provider, 0, len(chain))
	for _, name := range chain {
		p, err := f.Get(name)
		if err != nil {
			f.logger.Warn("skipping provider in failover chain", "provider", name, "err", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable provider in failover chain %v", chain)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return NewFailoverProvider(providers, f.logger), nil
}

// Settings returns the request tuning of the default provider.
func (f *Factory) Settings() (temperature *float64, maxTokens int) {
	pc := f.cfg.Providers[f.cfg.General.DefaultProvider]
	return pc.Temperature, pc.MaxTokens
}

// HealthyProvider returns the first enabled provider, in name order, that
// passes a health check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	names := make([]string, 0, len(f.cfg.Providers))
	for name := range f.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, err := f.Get(name)
		if err != nil || p == nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}
