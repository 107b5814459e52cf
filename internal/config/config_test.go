package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv makes ApplyEnv a no-op for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvPhoneNumberID, EnvAccessToken, EnvVerifyToken, EnvLLMAPIKey, EnvLLMBaseURL} {
		t.Setenv(k, "")
	}
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_NegativeThrottle(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.CompletionsPerMinute = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative completionsPerMinute")
	}
}

func TestValidate_UnknownDefaultProvider(t *testing.T) {
	cfg := Defaults()
	cfg.General.DefaultProvider = "missing"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown default provider")
	}
}

func TestValidate_FailoverChainUnknownProvider(t *testing.T) {
	cfg := Defaults()
	cfg.General.FailoverChain = []string{"openai", "nope"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown failover provider")
	}
}

func TestValidate_UnknownProviderKind(t *testing.T) {
	cfg := Defaults()
	cfg.Providers["local"] = ProviderConfig{Enabled: true, Kind: "gemini-web"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown provider kind")
	}

	cfg.Providers["local"] = ProviderConfig{Enabled: true, Kind: "ollama"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("ollama kind should be valid: %v", err)
	}
}

func TestValidate_Temperature(t *testing.T) {
	cfg := Defaults()
	pc := cfg.Providers["openai"]
	pc.Temperature = Float(2.5)
	cfg.Providers["openai"] = pc
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for temperature > 2")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
	for _, lvl := range []string{"debug", "info", "warn", "error", "INFO"} {
		cfg.General.LogLevel = lvl
		if err := Validate(cfg); err != nil {
			t.Errorf("logLevel %q should be valid: %v", lvl, err)
		}
	}
}

func TestValidate_JournalRetention(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.Enabled = true
	cfg.Journal.RetentionDays = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retentionDays=0 with journal enabled")
	}

	cfg.Journal.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled journal should not be validated: %v", err)
	}
}

func TestValidate_MissingTemplate(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.TemplateName = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty template name")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.WhatsApp.TemplateName = "hello_world"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.WhatsApp.TemplateName != "hello_world" {
		t.Fatalf("expected 'hello_world', got %q", loaded.WhatsApp.TemplateName)
	}
}

func TestLoadSave_YAMLRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := Defaults()
	original.Relay.StrictSend = true
	original.WhatsApp.PhoneNumberID = "1234567890"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Relay.StrictSend {
		t.Fatal("expected relay.strictSend=true after YAML round trip")
	}
	if loaded.WhatsApp.PhoneNumberID != "1234567890" {
		t.Fatalf("expected phone number id to survive, got %q", loaded.WhatsApp.PhoneNumberID)
	}
}

func TestLoad_YAMLPartialKeepsDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := "whatsapp:\n  verifyToken: s3cret\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WhatsApp.VerifyToken != "s3cret" {
		t.Fatalf("expected verify token from file, got %q", cfg.WhatsApp.VerifyToken)
	}
	if cfg.WhatsApp.APIVersion != "v20.0" {
		t.Fatalf("expected default api version, got %q", cfg.WhatsApp.APIVersion)
	}
}

func TestLoad_ExplicitZeroTemperature(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"providers":{"openai":{"enabled":true,"apiBase":"http://localhost:11434/v1","temperature":0}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	temp := cfg.Providers["openai"].Temperature
	if temp == nil || *temp != 0 {
		t.Fatalf("expected explicit temperature 0 to be kept, got %v", temp)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"general": {
			"listenAddr": ":8000",
			"logLevel": "info",
			"defaultProvider": "nowhere"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for unknown provider")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_WABRIDGE_TEMPLATE", "promo_v2")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"whatsapp": {
			"apiBase": "https://graph.facebook.com",
			"apiVersion": "v20.0",
			"templateName": "${TEST_WABRIDGE_TEMPLATE}",
			"templateLanguage": "${TEST_WABRIDGE_LANG:-en_US}"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WhatsApp.TemplateName != "promo_v2" {
		t.Fatalf("expected template 'promo_v2', got %q", cfg.WhatsApp.TemplateName)
	}
	if cfg.WhatsApp.TemplateLanguage != "en_US" {
		t.Fatalf("expected language 'en_US', got %q", cfg.WhatsApp.TemplateLanguage)
	}
}

// --- Environment overrides ---

func TestApplyEnv_OverridesChannelSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPhoneNumberID, "109876")
	t.Setenv(EnvAccessToken, "EAAB-token")
	t.Setenv(EnvVerifyToken, "verify-me")

	cfg := Defaults()
	cfg.WhatsApp.VerifyToken = "from-file"
	ApplyEnv(cfg)

	if cfg.WhatsApp.PhoneNumberID != "109876" {
		t.Errorf("phone number id = %q", cfg.WhatsApp.PhoneNumberID)
	}
	if cfg.WhatsApp.AccessToken != "EAAB-token" {
		t.Errorf("access token = %q", cfg.WhatsApp.AccessToken)
	}
	if cfg.WhatsApp.VerifyToken != "verify-me" {
		t.Errorf("environment should win over file, got %q", cfg.WhatsApp.VerifyToken)
	}
}

func TestApplyEnv_LLMTargetsDefaultProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLLMAPIKey, "sk-live")
	t.Setenv(EnvLLMBaseURL, "https://api.example.com/v1")

	cfg := Defaults()
	ApplyEnv(cfg)

	pc := cfg.Providers["openai"]
	if pc.APIKey != "sk-live" || pc.APIBase != "https://api.example.com/v1" {
		t.Fatalf("unexpected provider config: %+v", pc)
	}
	if pc.DefaultModel != "llama3" {
		t.Fatalf("model should be preserved, got %q", pc.DefaultModel)
	}
}

func TestApplyEnv_UnsetLeavesConfig(t *testing.T) {
	clearEnv(t)
	cfg := Defaults()
	cfg.WhatsApp.AccessToken = "keep"
	ApplyEnv(cfg)
	if cfg.WhatsApp.AccessToken != "keep" {
		t.Fatalf("empty env should not override, got %q", cfg.WhatsApp.AccessToken)
	}
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvVerifyToken, "tok")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.WhatsApp.VerifyToken != "tok" {
		t.Fatalf("expected verify token from env, got %q", cfg.WhatsApp.VerifyToken)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "whatsapp.templateName")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "lad_telephony" {
		t.Fatalf("expected 'lad_telephony', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "whatsapp.templateLanguage", "pt_BR"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.WhatsApp.TemplateLanguage != "pt_BR" {
		t.Fatalf("expected 'pt_BR', got %q", cfg.WhatsApp.TemplateLanguage)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "relay.strictSend", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.Relay.StrictSend {
		t.Fatal("expected relay.strictSend=true")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "journal.retentionDays", "7"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Journal.RetentionDays != 7 {
		t.Fatalf("expected 7, got %d", cfg.Journal.RetentionDays)
	}
}

func TestSetByPath_NumericStringStaysString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "whatsapp.phoneNumberId", "15551234567"); err != nil {
		t.Fatalf("set numeric id: %v", err)
	}
	if cfg.WhatsApp.PhoneNumberID != "15551234567" {
		t.Fatalf("expected '15551234567', got %q", cfg.WhatsApp.PhoneNumberID)
	}
}

func TestSetByPath_RejectsBadValues(t *testing.T) {
	cfg := Defaults()
	for path, value := range map[string]string{
		"journal.retentionDays":        "abc",
		"relay.strictSend":             "maybe",
		"relay.completionsPerMinute":   "fast",
		"providers.openai.temperature": "warm",
		"telemetry.headers":            "novalue",
	} {
		if err := SetByPath(cfg, path, value); err == nil {
			t.Errorf("expected error setting %s=%q", path, value)
		}
	}
	if cfg.Journal.RetentionDays != 30 || cfg.Relay.StrictSend {
		t.Fatal("failed sets must leave the config unchanged")
	}
	if temp := cfg.Providers["openai"].Temperature; temp == nil || *temp != 0.2 {
		t.Fatalf("temperature should be untouched, got %v", temp)
	}
}

func TestSetByPath_UnknownKey(t *testing.T) {
	cfg := Defaults()
	for _, path := range []string{"general.workspace", "providers", "providers.openai", "providers.openai.color", "providers..apiKey"} {
		if err := SetByPath(cfg, path, "x"); err == nil {
			t.Errorf("expected error for %s", path)
		}
	}
}

func TestSetByPath_ProviderFields(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "providers.claude.apiKey", "sk-ant-123"); err != nil {
		t.Fatalf("set new provider: %v", err)
	}
	if cfg.Providers["claude"].APIKey != "sk-ant-123" {
		t.Fatalf("expected claude entry to be created, got %+v", cfg.Providers["claude"])
	}

	if err := SetByPath(cfg, "providers.openai.temperature", "0"); err != nil {
		t.Fatalf("set temperature: %v", err)
	}
	if temp := cfg.Providers["openai"].Temperature; temp == nil || *temp != 0 {
		t.Fatalf("expected explicit temperature 0, got %v", temp)
	}
	if cfg.Providers["openai"].DefaultModel != "llama3" {
		t.Fatal("setting one provider field must keep the others")
	}

	if err := SetByPath(cfg, "providers.openai.temperature", ""); err != nil {
		t.Fatalf("clear temperature: %v", err)
	}
	if cfg.Providers["openai"].Temperature != nil {
		t.Fatal("empty value should clear the temperature")
	}
}

func TestSetByPath_ListsAndPairs(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "general.failoverChain", "openai, claude,"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	if len(cfg.General.FailoverChain) != 2 || cfg.General.FailoverChain[1] != "claude" {
		t.Fatalf("unexpected chain %v", cfg.General.FailoverChain)
	}
	if err := SetByPath(cfg, "telemetry.headers", "Authorization=Bearer t, X-Scope=relay"); err != nil {
		t.Fatalf("set headers: %v", err)
	}
	if cfg.Telemetry.Headers["Authorization"] != "Bearer t" || cfg.Telemetry.Headers["X-Scope"] != "relay" {
		t.Fatalf("unexpected headers %v", cfg.Telemetry.Headers)
	}
}

func TestGetByPath_Sections(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "providers.openai")
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	section, ok := val.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", val)
	}
	if section["defaultModel"] != "llama3" {
		t.Fatalf("expected defaultModel llama3, got %v", section["defaultModel"])
	}

	if _, err := GetByPath(cfg, "providers.missing.apiKey"); err == nil {
		t.Fatal("expected error for an unconfigured provider")
	}
}

func TestKeys_Documented(t *testing.T) {
	seen := make(map[string]bool)
	for _, k := range Keys(Defaults()) {
		if k.Doc == "" {
			t.Errorf("key %s has no description", k.Key)
		}
		if seen[k.Key] {
			t.Errorf("duplicate key %s", k.Key)
		}
		seen[k.Key] = true
	}
	for _, want := range []string{"whatsapp.verifyToken", "providers.openai.apiKey", "relay.completionBurst"} {
		if !seen[want] {
			t.Errorf("missing key %s", want)
		}
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Providers["openai"] = ProviderConfig{
		Enabled: true,
		APIKey:  "sk-1234567890abcdefghijklmnop",
	}
	cfg.WhatsApp.AccessToken = "EAAG1234567890abcdef"

	sanitized := Sanitize(cfg)

	if sanitized.Providers["openai"].APIKey == cfg.Providers["openai"].APIKey {
		t.Fatal("API key should be masked")
	}
	if sanitized.WhatsApp.AccessToken == cfg.WhatsApp.AccessToken {
		t.Fatal("access token should be masked")
	}
	// Verify original is untouched
	if cfg.WhatsApp.AccessToken != "EAAG1234567890abcdef" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.VerifyToken = "short"
	sanitized := Sanitize(cfg)
	if sanitized.WhatsApp.VerifyToken != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.WhatsApp.VerifyToken)
	}
}

func TestSanitize_MasksAppSecretAndHeaders(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.AppSecret = "whatsapp-secret-12345678"
	cfg.Telemetry.Headers = map[string]string{"Authorization": "Bearer otlp-token-1234"}
	sanitized := Sanitize(cfg)

	if sanitized.WhatsApp.AppSecret == cfg.WhatsApp.AppSecret {
		t.Fatal("WhatsApp appSecret should be masked")
	}
	if sanitized.Telemetry.Headers["Authorization"] == cfg.Telemetry.Headers["Authorization"] {
		t.Fatal("telemetry headers should be masked")
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	for _, expected := range []string{"general.listenAddr", "whatsapp.templateName", "relay.strictSend", "journal.enabled"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	result := ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`)
	expected := `{"apiKey": "sk-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

// --- Dotenv ---

func TestLoadDotEnv_SkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "WABRIDGE_DOTENV_NEW=from-file\nWABRIDGE_DOTENV_SET=from-file\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WABRIDGE_DOTENV_SET", "from-env")
	os.Unsetenv("WABRIDGE_DOTENV_NEW")
	t.Cleanup(func() { os.Unsetenv("WABRIDGE_DOTENV_NEW") })

	loaded, err := LoadDotEnv(filepath.Join(dir, ".env.local"), envFile)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != envFile {
		t.Fatalf("expected only %s to load, got %v", envFile, loaded)
	}
	if got := os.Getenv("WABRIDGE_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("expected from-file, got %q", got)
	}
	if got := os.Getenv("WABRIDGE_DOTENV_SET"); got != "from-env" {
		t.Fatalf("existing env should win, got %q", got)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.General.DefaultProvider != "openai" {
		t.Fatalf("default provider should be 'openai', got %q", cfg.General.DefaultProvider)
	}
	if cfg.Relay.StrictSend {
		t.Fatal("sends should be fire-and-forget by default")
	}
	if cfg.WhatsApp.SessionPrefix != "whatsapp:" {
		t.Fatalf("unexpected session prefix %q", cfg.WhatsApp.SessionPrefix)
	}
}
