package config

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Setting is one documented key that `wabridge config` can read and write.
type Setting struct {
	Key    string
	Doc    string
	Secret bool

	get func(*Config) any
	set func(*Config, string) error
}

// field describes a setting relative to the struct that holds it, so the
// same helpers serve the root config and each providers.<name> entry.
type field[T any] struct {
	name   string
	doc    string
	secret bool
	get    func(*T) any
	set    func(*T, string) error
}

func text[T any](name, doc string, ptr func(*T) *string) field[T] {
	return field[T]{
		name: name,
		doc:  doc,
		get:  func(t *T) any { return *ptr(t) },
		set:  func(t *T, raw string) error { *ptr(t) = raw; return nil },
	}
}

func secret[T any](name, doc string, ptr func(*T) *string) field[T] {
	f := text(name, doc, ptr)
	f.secret = true
	return f
}

func flag[T any](name, doc string, ptr func(*T) *bool) field[T] {
	return field[T]{
		name: name,
		doc:  doc,
		get:  func(t *T) any { return *ptr(t) },
		set: func(t *T, raw string) error {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%s expects true or false, got %q", name, raw)
			}
			*ptr(t) = v
			return nil
		},
	}
}

func integer[T any](name, doc string, ptr func(*T) *int) field[T] {
	return field[T]{
		name: name,
		doc:  doc,
		get:  func(t *T) any { return *ptr(t) },
		set: func(t *T, raw string) error {
			v, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%s expects an integer, got %q", name, raw)
			}
			*ptr(t) = v
			return nil
		},
	}
}

func number[T any](name, doc string, ptr func(*T) *float64) field[T] {
	return field[T]{
		name: name,
		doc:  doc,
		get:  func(t *T) any { return *ptr(t) },
		set: func(t *T, raw string) error {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return fmt.Errorf("%s expects a number, got %q", name, raw)
			}
			*ptr(t) = v
			return nil
		},
	}
}

// optional is a number that may be unset; an empty value clears it.
func optional[T any](name, doc string, ptr func(*T) **float64) field[T] {
	return field[T]{
		name: name,
		doc:  doc,
		get: func(t *T) any {
			if p := *ptr(t); p != nil {
				return *p
			}
			return nil
		},
		set: func(t *T, raw string) error {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				*ptr(t) = nil
				return nil
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("%s expects a number or an empty value, got %q", name, raw)
			}
			*ptr(t) = &v
			return nil
		},
	}
}

// list takes a comma-separated value.
func list[T any](name, doc string, ptr func(*T) *[]string) field[T] {
	return field[T]{
		name: name,
		doc:  doc,
		get:  func(t *T) any { return *ptr(t) },
		set: func(t *T, raw string) error {
			var out []string
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			*ptr(t) = out
			return nil
		},
	}
}

// pairs takes comma-separated key=value entries.
func pairs[T any](name, doc string, ptr func(*T) *map[string]string) field[T] {
	return field[T]{
		name:   name,
		doc:    doc,
		secret: true,
		get:    func(t *T) any { return *ptr(t) },
		set: func(t *T, raw string) error {
			out := make(map[string]string)
			for _, item := range strings.Split(raw, ",") {
				if strings.TrimSpace(item) == "" {
					continue
				}
				k, v, ok := strings.Cut(item, "=")
				if !ok || strings.TrimSpace(k) == "" {
					return fmt.Errorf("%s expects key=value pairs, got %q", name, item)
				}
				out[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			*ptr(t) = out
			return nil
		},
	}
}

var rootFields = []field[Config]{
	text("general.listenAddr", "HTTP listen address", func(c *Config) *string { return &c.General.ListenAddr }),
	text("general.logLevel", "debug, info, warn or error", func(c *Config) *string { return &c.General.LogLevel }),
	text("general.logFormat", "text or json", func(c *Config) *string { return &c.General.LogFormat }),
	text("general.defaultProvider", "provider entry used for completions", func(c *Config) *string { return &c.General.DefaultProvider }),
	list("general.failoverChain", "provider entries tried in order", func(c *Config) *[]string { return &c.General.FailoverChain }),
	integer("general.httpTimeoutSeconds", "timeout for outbound HTTP calls", func(c *Config) *int { return &c.General.HTTPTimeoutSeconds }),

	text("whatsapp.apiBase", "Graph API base URL", func(c *Config) *string { return &c.WhatsApp.APIBase }),
	text("whatsapp.apiVersion", "Graph API version path segment", func(c *Config) *string { return &c.WhatsApp.APIVersion }),
	text("whatsapp.phoneNumberId", "sending phone number ID", func(c *Config) *string { return &c.WhatsApp.PhoneNumberID }),
	secret("whatsapp.accessToken", "bearer token for the Graph API", func(c *Config) *string { return &c.WhatsApp.AccessToken }),
	secret("whatsapp.verifyToken", "shared secret for webhook verification", func(c *Config) *string { return &c.WhatsApp.VerifyToken }),
	secret("whatsapp.appSecret", "app secret for X-Hub-Signature-256; empty disables the check", func(c *Config) *string { return &c.WhatsApp.AppSecret }),
	text("whatsapp.templateName", "template sent by /start", func(c *Config) *string { return &c.WhatsApp.TemplateName }),
	text("whatsapp.templateLanguage", "template language code", func(c *Config) *string { return &c.WhatsApp.TemplateLanguage }),
	text("whatsapp.sessionPrefix", "prefix joined to the sender ID to form a session ID", func(c *Config) *string { return &c.WhatsApp.SessionPrefix }),

	flag("relay.strictSend", "report failed sends in handler responses", func(c *Config) *bool { return &c.Relay.StrictSend }),
	number("relay.completionsPerMinute", "backend call rate limit; 0 disables", func(c *Config) *float64 { return &c.Relay.CompletionsPerMinute }),
	integer("relay.completionBurst", "calls allowed above the rate limit", func(c *Config) *int { return &c.Relay.CompletionBurst }),

	flag("journal.enabled", "record interactions in SQLite", func(c *Config) *bool { return &c.Journal.Enabled }),
	text("journal.dbPath", "journal database file", func(c *Config) *string { return &c.Journal.DBPath }),
	integer("journal.retentionDays", "days of history kept by the purge job", func(c *Config) *int { return &c.Journal.RetentionDays }),
	text("journal.purgeSchedule", "cron expression for the purge job", func(c *Config) *string { return &c.Journal.PurgeSchedule }),

	flag("metrics.enabled", "serve Prometheus metrics", func(c *Config) *bool { return &c.Metrics.Enabled }),
	text("metrics.endpoint", "metrics route", func(c *Config) *string { return &c.Metrics.Endpoint }),

	flag("telemetry.enabled", "export traces over OTLP/HTTP", func(c *Config) *bool { return &c.Telemetry.Enabled }),
	text("telemetry.endpoint", "OTLP collector host:port", func(c *Config) *string { return &c.Telemetry.Endpoint }),
	flag("telemetry.insecure", "send traces without TLS", func(c *Config) *bool { return &c.Telemetry.Insecure }),
	text("telemetry.serviceName", "service.name resource attribute", func(c *Config) *string { return &c.Telemetry.ServiceName }),
	pairs("telemetry.headers", "extra OTLP headers as key=value pairs", func(c *Config) *map[string]string { return &c.Telemetry.Headers }),
}

var providerFields = []field[ProviderConfig]{
	flag("enabled", "use this provider", func(p *ProviderConfig) *bool { return &p.Enabled }),
	text("kind", "openai, ollama or claude; defaults to the entry name", func(p *ProviderConfig) *string { return &p.Kind }),
	text("apiBase", "backend base URL", func(p *ProviderConfig) *string { return &p.APIBase }),
	secret("apiKey", "backend API key", func(p *ProviderConfig) *string { return &p.APIKey }),
	text("defaultModel", "model used when a request names none", func(p *ProviderConfig) *string { return &p.DefaultModel }),
	optional("temperature", "sampling temperature; empty leaves the backend default", func(p *ProviderConfig) **float64 { return &p.Temperature }),
	integer("maxTokens", "completion token limit; 0 leaves the backend default", func(p *ProviderConfig) *int { return &p.MaxTokens }),
}

func rootSetting(f field[Config]) Setting {
	return Setting{Key: f.name, Doc: f.doc, Secret: f.secret, get: f.get, set: f.set}
}

// providerSetting binds a provider field to the providers.<name> entry.
// Setting a field of an absent entry creates it.
func providerSetting(name string, f field[ProviderConfig]) Setting {
	return Setting{
		Key:    "providers." + name + "." + f.name,
		Doc:    f.doc,
		Secret: f.secret,
		get: func(c *Config) any {
			pc := c.Providers[name]
			return f.get(&pc)
		},
		set: func(c *Config, raw string) error {
			pc := c.Providers[name]
			if err := f.set(&pc, raw); err != nil {
				return err
			}
			if c.Providers == nil {
				c.Providers = make(map[string]ProviderConfig)
			}
			c.Providers[name] = pc
			return nil
		},
	}
}

// Keys returns every settable key for cfg, including one group per
// configured provider, sorted by key.
func Keys(cfg *Config) []Setting {
	out := make([]Setting, 0, len(rootFields)+len(cfg.Providers)*len(providerFields))
	for _, f := range rootFields {
		out = append(out, rootSetting(f))
	}
	for name := range cfg.Providers {
		for _, f := range providerFields {
			out = append(out, providerSetting(name, f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func lookup(path string) (Setting, bool) {
	for _, f := range rootFields {
		if f.name == path {
			return rootSetting(f), true
		}
	}
	name, key, ok := providerKey(path)
	if !ok {
		return Setting{}, false
	}
	for _, f := range providerFields {
		if f.name == key {
			return providerSetting(name, f), true
		}
	}
	return Setting{}, false
}

// providerKey splits "providers.<name>.<field>".
func providerKey(path string) (name, key string, ok bool) {
	rest, ok := strings.CutPrefix(path, "providers.")
	if !ok {
		return "", "", false
	}
	name, key, ok = strings.Cut(rest, ".")
	return name, key, ok && name != ""
}

// GetByPath returns the value at a key such as "whatsapp.templateName", or
// every key under a section such as "providers.openai" as a map.
func GetByPath(cfg *Config, path string) (any, error) {
	if s, ok := lookup(path); ok {
		if name, _, isProvider := providerKey(path); isProvider {
			if _, exists := cfg.Providers[name]; !exists {
				return nil, fmt.Errorf("unknown provider: %s", name)
			}
		}
		return s.get(cfg), nil
	}
	section := make(map[string]any)
	for _, s := range Keys(cfg) {
		if rest, ok := strings.CutPrefix(s.Key, path+"."); ok {
			section[rest] = s.get(cfg)
		}
	}
	if len(section) == 0 {
		return nil, fmt.Errorf("unknown config key: %s", path)
	}
	return section, nil
}

// SetByPath parses value for the key's type and stores it. The config is
// left unchanged when parsing fails.
func SetByPath(cfg *Config, path, value string) error {
	s, ok := lookup(path)
	if !ok {
		return fmt.Errorf("unknown config key: %s", path)
	}
	return s.set(cfg, value)
}

// ListPaths returns every settable key with its current value.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	for _, s := range Keys(cfg) {
		out[s.Key] = s.get(cfg)
	}
	return out
}

// Sanitize returns a copy of the config with every secret key masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.General.FailoverChain = slices.Clone(cfg.General.FailoverChain)
	out.Providers = maps.Clone(cfg.Providers)
	out.Telemetry.Headers = maps.Clone(cfg.Telemetry.Headers)

	for _, s := range Keys(&out) {
		if !s.Secret {
			continue
		}
		switch v := s.get(&out).(type) {
		case string:
			if v != "" {
				_ = s.set(&out, maskString(v))
			}
		case map[string]string:
			for k, val := range v {
				v[k] = maskString(val)
			}
		}
	}
	return &out
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
