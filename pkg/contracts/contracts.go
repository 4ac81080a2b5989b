// Package contracts defines the service interfaces for the GeniQ pipeline.
//
// The engine depends only on these interfaces, so the generator and the
// persistence layer can be swapped for fakes in tests or for alternative
// implementations in the wiring code (main.go).
package contracts

import (
	"context"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// ── Generator ───────────────────────────────────────────────

// Generator produces free text from a prompt. The text is expected to contain
// a JSON array of objects but nothing about it is guaranteed.
// Implementation: internal/generator.Router
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ── Provider Driver ─────────────────────────────────────────

// ProviderDriver is the interface for model provider integrations.
// Ships: OpenAI (and Azure OpenAI), Anthropic, Ollama, Gemini.
//
// Drivers are registered in the generator router via RegisterDriver().
type ProviderDriver interface {
	// Kind returns the provider identifier (e.g., "openai", "gemini").
	Kind() string

	// Complete sends a single prompt to the provider and returns its text.
	Complete(ctx context.Context, provider *models.ModelProvider, model, prompt string) (string, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context, provider *models.ModelProvider) error
}

// ── Dataset Writer ──────────────────────────────────────────

// DatasetWriter persists a finished envelope and returns the file path.
// Implementation: internal/writer.FileWriter
type DatasetWriter interface {
	Write(ctx context.Context, env *models.Envelope, columns []models.ColumnDefinition, format models.OutputFormat) (string, error)
}

// ── Run Notifier ────────────────────────────────────────────

// RunNotifier is told about finished runs. The engine calls it off the
// request path; errors are logged, never surfaced to the caller.
// Implementation: internal/notify.Webhook
type RunNotifier interface {
	Notify(ctx context.Context, ev models.RunEvent) error
}
