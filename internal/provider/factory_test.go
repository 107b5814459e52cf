package provider

import (
	"testing"

	"wabridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_DefaultIsOpenAICompatible(t *testing.T) {
	f := NewFactory(config.Defaults(), nil, testLogger())
	p, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	again, err := f.Get("")
	require.NoError(t, err)
	assert.Same(t, p, again, "providers should be cached")
}

func TestFactory_KindSelectsConstructor(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["local"] = config.ProviderConfig{Enabled: true, Kind: "ollama"}
	cfg.Providers["hosted"] = config.ProviderConfig{Enabled: true, Kind: "claude", APIKey: "sk-ant"}
	f := NewFactory(cfg, nil, testLogger())

	p, err := f.Get("local")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = f.Get("hosted")
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())
}

func TestFactory_DisabledAndUnknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["off"] = config.ProviderConfig{Enabled: false}
	f := NewFactory(cfg, nil, testLogger())

	_, err := f.Get("off")
	assert.Error(t, err)
	_, err = f.Get("missing")
	assert.Error(t, err)
}

func TestFactory_FailoverChain(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["ollama"] = config.ProviderConfig{Enabled: true}
	cfg.General.FailoverChain = []string{"ollama", "openai"}
	f := NewFactory(cfg, nil, testLogger())

	p, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, "failover(ollama→openai)", p.Name())
}

func TestFactory_FailoverChainSkipsDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["ollama"] = config.ProviderConfig{Enabled: false}
	cfg.General.FailoverChain = []string{"ollama", "openai"}
	f := NewFactory(cfg, nil, testLogger())

	p, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestFactory_Settings(t *testing.T) {
	f := NewFactory(config.Defaults(), nil, testLogger())
	temp, maxTokens := f.Settings()
	require.NotNil(t, temp)
	assert.InDelta(t, 0.2, *temp, 1e-9)
	assert.Zero(t, maxTokens)

	cfg := config.Defaults()
	pc := cfg.Providers["openai"]
	pc.Temperature = nil
	cfg.Providers["openai"] = pc
	temp, _ = NewFactory(cfg, nil, testLogger()).Settings()
	assert.Nil(t, temp)
}
