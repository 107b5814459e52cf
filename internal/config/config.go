package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for wabridge.
type Config struct {
	General   GeneralConfig             `json:"general" yaml:"general"`
	WhatsApp  WhatsAppConfig            `json:"whatsapp" yaml:"whatsapp"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Relay     RelayConfig               `json:"relay" yaml:"relay"`
	Journal   JournalConfig             `json:"journal" yaml:"journal"`
	Metrics   MetricsConfig             `json:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig           `json:"telemetry" yaml:"telemetry"`
}

type GeneralConfig struct {
	ListenAddr         string   `json:"listenAddr" yaml:"listenAddr"`
	LogLevel           string   `json:"logLevel" yaml:"logLevel"`
	LogFormat          string   `json:"logFormat,omitempty" yaml:"logFormat,omitempty"` // "text" | "json"
	DefaultProvider    string   `json:"defaultProvider" yaml:"defaultProvider"`
	FailoverChain      []string `json:"failoverChain,omitempty" yaml:"failoverChain,omitempty"` // provider failover order
	HTTPTimeoutSeconds int      `json:"httpTimeoutSeconds" yaml:"httpTimeoutSeconds"`
}

type WhatsAppConfig struct {
	APIBase          string `json:"apiBase" yaml:"apiBase"`
	APIVersion       string `json:"apiVersion" yaml:"apiVersion"`
	PhoneNumberID    string `json:"phoneNumberId,omitempty" yaml:"phoneNumberId,omitempty"`
	AccessToken      string `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	VerifyToken      string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty"`
	AppSecret        string `json:"appSecret,omitempty" yaml:"appSecret,omitempty"` // optional X-Hub-Signature-256 check
	TemplateName     string `json:"templateName" yaml:"templateName"`
	TemplateLanguage string `json:"templateLanguage" yaml:"templateLanguage"`
	SessionPrefix    string `json:"sessionPrefix" yaml:"sessionPrefix"`
}

type ProviderConfig struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Kind         string   `json:"kind,omitempty" yaml:"kind,omitempty"` // "openai" | "ollama" | "claude"; defaults to the entry name
	APIBase      string   `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey       string   `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	DefaultModel string   `json:"defaultModel,omitempty" yaml:"defaultModel,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
}

// RelayConfig tunes the webhook flow.
type RelayConfig struct {
	// StrictSend reports failed outbound sends in the handler response
	// instead of acknowledging them as delivered.
	StrictSend bool `json:"strictSend" yaml:"strictSend"`
	// CompletionsPerMinute caps backend calls across all flows; 0 disables.
	CompletionsPerMinute float64 `json:"completionsPerMinute,omitempty" yaml:"completionsPerMinute,omitempty"`
	CompletionBurst      int     `json:"completionBurst,omitempty" yaml:"completionBurst,omitempty"`
}

type JournalConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
	PurgeSchedule string `json:"purgeSchedule" yaml:"purgeSchedule"` // cron expression
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// TelemetryConfig configures OpenTelemetry trace export over OTLP/HTTP.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.wabridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wabridge"
	}
	return filepath.Join(home, ".wabridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// isYAML reports whether path should be decoded as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads a JSON or YAML config file, expands ${VAR} references, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// FromEnv builds a config from defaults plus environment overrides only.
func FromEnv() (*Config, error) {
	return finish(Defaults())
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnv(cfg)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Environment variables recognized as overrides.
const (
	EnvPhoneNumberID = "PHONE_NUMBER_ID"
	EnvAccessToken   = "ACCESS_TOKEN"
	EnvVerifyToken   = "VERIFY_TOKEN"
	EnvLLMAPIKey     = "LLM_API_KEY"
	EnvLLMBaseURL    = "LLM_BASE_URL"
)

// ApplyEnv overrides config values with the recognized environment variables.
// The LLM variables apply to the default provider.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvPhoneNumberID); v != "" {
		cfg.WhatsApp.PhoneNumberID = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		cfg.WhatsApp.AccessToken = v
	}
	if v := os.Getenv(EnvVerifyToken); v != "" {
		cfg.WhatsApp.VerifyToken = v
	}

	key, base := os.Getenv(EnvLLMAPIKey), os.Getenv(EnvLLMBaseURL)
	if key == "" && base == "" {
		return
	}
	name := cfg.General.DefaultProvider
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	pc := cfg.Providers[name]
	if key != "" {
		pc.APIKey = key
	}
	if base != "" {
		pc.APIBase = base
	}
	cfg.Providers[name] = pc
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep the reference when nothing can replace it
		}
		return val
	})
}

// Save writes cfg as JSON or YAML depending on the file extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.ListenAddr == "" {
		errs = append(errs, "general.listenAddr is required")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.HTTPTimeoutSeconds < 0 {
		errs = append(errs, "general.httpTimeoutSeconds must be >= 0")
	}

	if cfg.WhatsApp.APIBase == "" {
		errs = append(errs, "whatsapp.apiBase is required")
	}
	if cfg.WhatsApp.APIVersion == "" {
		errs = append(errs, "whatsapp.apiVersion is required")
	}
	if cfg.WhatsApp.TemplateName == "" || cfg.WhatsApp.TemplateLanguage == "" {
		errs = append(errs, "whatsapp.templateName and whatsapp.templateLanguage are required")
	}

	if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
		errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
	}
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}
	for name, pc := range cfg.Providers {
		switch pc.KindOr(name) {
		case "openai", "ollama", "claude":
		default:
			errs = append(errs, fmt.Sprintf("providers.%s: unknown kind %q", name, pc.KindOr(name)))
		}
		if t := pc.Temperature; t != nil && (*t < 0 || *t > 2) {
			errs = append(errs, fmt.Sprintf("providers.%s: temperature must be between 0 and 2", name))
		}
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.DBPath == "" {
			errs = append(errs, "journal.dbPath is required when the journal is enabled")
		}
		if cfg.Journal.RetentionDays < 1 {
			errs = append(errs, "journal.retentionDays must be >= 1")
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}
	if cfg.Relay.CompletionsPerMinute < 0 || cfg.Relay.CompletionBurst < 0 {
		errs = append(errs, "relay.completionsPerMinute and relay.completionBurst must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// KindOr returns the configured backend kind, falling back to name.
func (pc ProviderConfig) KindOr(name string) string {
	if pc.Kind != "" {
		return pc.Kind
	}
	return name
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
