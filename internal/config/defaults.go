package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			ListenAddr:         ":8000",
			LogLevel:           "info",
			LogFormat:          "text",
			DefaultProvider:    "openai",
			HTTPTimeoutSeconds: 120,
		},
		WhatsApp: WhatsAppConfig{
			APIBase:          "https://graph.facebook.com",
			APIVersion:       "v20.0",
			TemplateName:     "lad_telephony",
			TemplateLanguage: "en",
			SessionPrefix:    "whatsapp:",
		},
		Providers: map[string]ProviderConfig{
			// Local Ollama through its OpenAI-compatible endpoint.
			"openai": {
				Enabled:      true,
				APIBase:      "http://localhost:11434/v1",
				APIKey:       "ollama",
				DefaultModel: "llama3",
				Temperature:  Float(0.2),
			},
		},
		Journal: JournalConfig{
			Enabled:       false,
			DBPath:        "~/.wabridge/journal.db",
			RetentionDays: 30,
			PurgeSchedule: "@daily",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "wabridge",
		},
	}
}

// Float returns a pointer to v for optional numeric settings.
func Float(v float64) *float64 { return &v }
