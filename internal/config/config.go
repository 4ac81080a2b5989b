package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Config holds all configuration for the GeniQ service and CLI.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Output     OutputConfig     `yaml:"output"`
	Store      StoreConfig      `yaml:"store"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
	Value      ValueConfig      `yaml:"value"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Version         string        `yaml:"version"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GeneratorConfig struct {
	Strategy       string                 `yaml:"strategy"` // fallback, round-robin, latency-optimized
	Providers      []models.ModelProvider `yaml:"providers"`
	CallTimeout    time.Duration          `yaml:"call_timeout"`
	MaxAttempts    int                    `yaml:"max_attempts"`
	MaxElapsed     time.Duration          `yaml:"max_elapsed"`
	InitialBackoff time.Duration          `yaml:"initial_backoff"`
	RateLimit      float64                `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst          int                    `yaml:"burst"`
	Temperature    float64                `yaml:"temperature"`
	MaxTokens      int                    `yaml:"max_tokens"`
}

type PipelineConfig struct {
	// MaxRegenerations bounds single-item regeneration attempts per slot.
	MaxRegenerations int `yaml:"max_regenerations"`
}

type GuardrailsConfig struct {
	Policy           models.GuardrailPolicy `yaml:"policy"`
	MaxViolationRate float64                `yaml:"max_violation_rate"`
}

type OutputConfig struct {
	Dir             string        `yaml:"dir"`
	RetentionDays   int           `yaml:"retention_days"` // 0 keeps files forever
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type StoreConfig struct {
	Driver  string        `yaml:"driver"` // memory, sqlite
	DataDir string        `yaml:"data_dir"`
	DSN     string        `yaml:"dsn"`
	RunTTL  time.Duration `yaml:"run_ttl"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

type AuthConfig struct {
	// APIKeys enables API-key auth when non-empty.
	APIKeys      []string `yaml:"api_keys"`
	APIKeyHeader string   `yaml:"api_key_header"`
}

type ValueConfig struct {
	TabularSecondsPerItem float64 `yaml:"tabular_seconds_per_item"`
	QASecondsPerItem      float64 `yaml:"qa_seconds_per_item"`
	HourlyRate            float64 `yaml:"hourly_rate"`
}

type NotifyConfig struct {
	WebhookURL    string   `yaml:"webhook_url"`
	WebhookSecret string   `yaml:"webhook_secret"`
	Events        []string `yaml:"events"` // run_completed, run_failed; empty = all
}

// Load reads configuration from environment variables with sensible defaults,
// then overlays the YAML file named by GENIQ_CONFIG if set.
func Load() (*Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("GENIQ_CONFIG"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            envInt("GENIQ_PORT", 8080),
			Version:         envStr("GENIQ_VERSION", "1.0.0"),
			AllowedOrigins:  envList("GENIQ_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout:  envDuration("GENIQ_REQUEST_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: envDuration("GENIQ_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Generator: GeneratorConfig{
			Strategy:       envStr("GENIQ_ROUTING_STRATEGY", "fallback"),
			Providers:      providersFromEnv(),
			CallTimeout:    envDuration("GENIQ_CALL_TIMEOUT", 60*time.Second),
			MaxAttempts:    envInt("GENIQ_CALL_MAX_ATTEMPTS", 3),
			MaxElapsed:     envDuration("GENIQ_CALL_MAX_ELAPSED", 3*time.Minute),
			InitialBackoff: envDuration("GENIQ_CALL_INITIAL_BACKOFF", 500*time.Millisecond),
			RateLimit:      envFloat("GENIQ_RATE_LIMIT", 0),
			Burst:          envInt("GENIQ_RATE_BURST", 1),
			Temperature:    envFloat("GENIQ_TEMPERATURE", 0.7),
			MaxTokens:      envInt("GENIQ_MAX_TOKENS", 8192),
		},
		Pipeline: PipelineConfig{
			MaxRegenerations: envInt("GENIQ_MAX_REGENERATIONS", 3),
		},
		Guardrails: GuardrailsConfig{
			Policy:           models.GuardrailPolicy(envStr("GENIQ_GUARDRAIL_POLICY", string(models.PolicyReportOnly))),
			MaxViolationRate: envFloat("GENIQ_MAX_ETHICS_VIOLATIONS", 0.05),
		},
		Output: OutputConfig{
			Dir:             envStr("GENIQ_OUTPUT_DIR", ""),
			RetentionDays:   envInt("GENIQ_OUTPUT_RETENTION_DAYS", 7),
			JanitorInterval: envDuration("GENIQ_JANITOR_INTERVAL", time.Hour),
		},
		Store: StoreConfig{
			Driver:  envStr("GENIQ_STORE", "memory"),
			DataDir: envStr("GENIQ_DATA_DIR", defaultDataDir()),
			DSN:     envStr("GENIQ_DATABASE_DSN", "geniq.db"),
			RunTTL:  envDuration("GENIQ_RUN_TTL", 7*24*time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "geniq"),
			SampleRatio:  envFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
		Auth: AuthConfig{
			APIKeys:      envList("GENIQ_API_KEYS", nil),
			APIKeyHeader: envStr("GENIQ_API_KEY_HEADER", "X-API-Key"),
		},
		Value: ValueConfig{
			TabularSecondsPerItem: envFloat("GENIQ_TABULAR_SECONDS_PER_ITEM", 120),
			QASecondsPerItem:      envFloat("GENIQ_QA_SECONDS_PER_ITEM", 180),
			HourlyRate:            envFloat("GENIQ_HOURLY_RATE", 50),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr("GENIQ_WEBHOOK_URL", ""),
			WebhookSecret: envStr("GENIQ_WEBHOOK_SECRET", ""),
			Events:        envList("GENIQ_WEBHOOK_EVENTS", nil),
		},
	}
}

// Overlay merges the YAML file at path over cfg. Keys absent from the file
// keep their current values.
func (c *Config) Overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Guardrails.Policy {
	case models.PolicyReportOnly, models.PolicyFailClosed:
	default:
		return fmt.Errorf("invalid guardrail policy %q (want report_only or fail_closed)", c.Guardrails.Policy)
	}
	if c.Guardrails.MaxViolationRate < 0 {
		return fmt.Errorf("max violation rate must be >= 0, got %v", c.Guardrails.MaxViolationRate)
	}
	switch c.Generator.Strategy {
	case "fallback", "round-robin", "latency-optimized":
	default:
		return fmt.Errorf("invalid routing strategy %q", c.Generator.Strategy)
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid store driver %q (want memory or sqlite)", c.Store.Driver)
	}
	if c.Pipeline.MaxRegenerations < 1 {
		return fmt.Errorf("max regenerations must be >= 1, got %d", c.Pipeline.MaxRegenerations)
	}
	return nil
}

// providersFromEnv registers one provider per API key found in the
// environment, in a fixed order. The first becomes the default.
func providersFromEnv() []models.ModelProvider {
	var out []models.ModelProvider
	add := func(p models.ModelProvider) {
		p.IsDefault = len(out) == 0
		out = append(out, p)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		add(models.ModelProvider{
			Name:   "gemini",
			Kind:   "gemini",
			APIKey: key,
			Models: []string{envStr("GENIQ_GEMINI_MODEL", "gemini-1.5-flash")},
		})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		add(models.ModelProvider{
			Name:     "openai",
			Kind:     "openai",
			APIKey:   key,
			Endpoint: envStr("OPENAI_BASE_URL", ""),
			Models:   []string{envStr("GENIQ_OPENAI_MODEL", "gpt-4o-mini")},
		})
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		add(models.ModelProvider{
			Name:   "anthropic",
			Kind:   "anthropic",
			APIKey: key,
			Models: []string{envStr("GENIQ_ANTHROPIC_MODEL", "claude-3-5-haiku-latest")},
		})
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		add(models.ModelProvider{
			Name:     "ollama",
			Kind:     "ollama",
			Endpoint: host,
			Models:   []string{envStr("GENIQ_OLLAMA_MODEL", "llama3.1")},
		})
	}
	return out
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + string(os.PathSeparator) + ".geniq"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
