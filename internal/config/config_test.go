package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST", "GENIQ_CONFIG"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Guardrails.Policy != models.PolicyReportOnly {
		t.Errorf("Policy = %q, want report_only", cfg.Guardrails.Policy)
	}
	if cfg.Guardrails.MaxViolationRate != 0.05 {
		t.Errorf("MaxViolationRate = %v, want 0.05", cfg.Guardrails.MaxViolationRate)
	}
	if cfg.Generator.CallTimeout != 60*time.Second {
		t.Errorf("CallTimeout = %v, want 60s", cfg.Generator.CallTimeout)
	}
	if cfg.Pipeline.MaxRegenerations != 3 {
		t.Errorf("MaxRegenerations = %d, want 3", cfg.Pipeline.MaxRegenerations)
	}
	if len(cfg.Generator.Providers) != 0 {
		t.Errorf("Providers = %v, want none", cfg.Generator.Providers)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GENIQ_PORT", "9090")
	t.Setenv("GENIQ_GUARDRAIL_POLICY", "fail_closed")
	t.Setenv("GENIQ_MAX_ETHICS_VIOLATIONS", "0.2")
	t.Setenv("GENIQ_CALL_TIMEOUT", "5s")
	t.Setenv("GENIQ_API_KEYS", "alpha, beta ,")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")
	t.Setenv("GENIQ_WEBHOOK_URL", "https://hooks.example.com/geniq")
	t.Setenv("GENIQ_WEBHOOK_EVENTS", "run_failed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Guardrails.Policy != models.PolicyFailClosed || cfg.Guardrails.MaxViolationRate != 0.2 {
		t.Errorf("Guardrails = %+v", cfg.Guardrails)
	}
	if cfg.Generator.CallTimeout != 5*time.Second {
		t.Errorf("CallTimeout = %v, want 5s", cfg.Generator.CallTimeout)
	}
	if got := cfg.Auth.APIKeys; len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("APIKeys = %v, want [alpha beta]", got)
	}

	if cfg.Notify.WebhookURL != "https://hooks.example.com/geniq" || len(cfg.Notify.Events) != 1 {
		t.Errorf("Notify = %+v", cfg.Notify)
	}

	ps := cfg.Generator.Providers
	if len(ps) != 2 {
		t.Fatalf("Providers len = %d, want 2", len(ps))
	}
	if ps[0].Kind != "gemini" || !ps[0].IsDefault || ps[0].APIKey != "g-key" {
		t.Errorf("Providers[0] = %+v", ps[0])
	}
	if ps[1].Kind != "ollama" || ps[1].IsDefault {
		t.Errorf("Providers[1] = %+v", ps[1])
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GENIQ_PORT", "not-a-number")
	t.Setenv("GENIQ_CALL_TIMEOUT", "soon")
	cfg := FromEnv()
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want fallback 8080", cfg.Server.Port)
	}
	if cfg.Generator.CallTimeout != 60*time.Second {
		t.Errorf("CallTimeout = %v, want fallback 60s", cfg.Generator.CallTimeout)
	}
}

func TestYAMLOverlay(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "geniq.yaml")
	doc := `
server:
  port: 7000
generator:
  strategy: round-robin
  call_timeout: 20s
  providers:
    - name: local
      kind: ollama
      endpoint: http://ollama:11434
      models: [llama3.1]
      is_default: true
guardrails:
  policy: fail_closed
store:
  driver: sqlite
  dsn: ":memory:"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GENIQ_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Server.Version != "1.0.0" {
		t.Errorf("Version = %q, want env default kept", cfg.Server.Version)
	}
	if cfg.Generator.Strategy != "round-robin" || cfg.Generator.CallTimeout != 20*time.Second {
		t.Errorf("Generator = %+v", cfg.Generator)
	}
	if len(cfg.Generator.Providers) != 1 || cfg.Generator.Providers[0].Endpoint != "http://ollama:11434" {
		t.Errorf("Providers = %+v", cfg.Generator.Providers)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != ":memory:" {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

func TestValidate(t *testing.T) {
	clearProviderEnv(t)
	cases := map[string]func(*Config){
		"policy":   func(c *Config) { c.Guardrails.Policy = "block_all" },
		"rate":     func(c *Config) { c.Guardrails.MaxViolationRate = -1 },
		"strategy": func(c *Config) { c.Generator.Strategy = "random" },
		"store":    func(c *Config) { c.Store.Driver = "postgres" },
		"regen":    func(c *Config) { c.Pipeline.MaxRegenerations = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := FromEnv()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GENIQ_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Load() = nil error for missing file")
	}
}
