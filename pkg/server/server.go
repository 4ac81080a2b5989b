// Package server provides the public entry point for assembling GeniQ.
//
// This package exists in pkg/ (not internal/) so that other binaries can
// compose the pipeline without the HTTP layer, or wrap the HTTP handler
// with their own middleware.
//
// Usage (HTTP):
//
//	srv, err := server.New(ctx, cfg)
//	http.ListenAndServe(":8080", srv.Handler)
//
// Usage (pipeline only):
//
//	p, err := server.NewPipeline(ctx, cfg)
//	path, err := p.Engine.Generate(ctx, req)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/internal/analytics"
	"github.com/vaisu-bhut/GeniQ/internal/api"
	"github.com/vaisu-bhut/GeniQ/internal/api/handlers"
	"github.com/vaisu-bhut/GeniQ/internal/config"
	"github.com/vaisu-bhut/GeniQ/internal/engine"
	"github.com/vaisu-bhut/GeniQ/internal/generator"
	"github.com/vaisu-bhut/GeniQ/internal/guardrails"
	"github.com/vaisu-bhut/GeniQ/internal/notify"
	"github.com/vaisu-bhut/GeniQ/internal/store"
	"github.com/vaisu-bhut/GeniQ/internal/telemetry"
	"github.com/vaisu-bhut/GeniQ/internal/writer"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
)

// Pipeline holds the generation components shared by the server and the CLI.
type Pipeline struct {
	Engine    *engine.Engine
	Generator *generator.Router
	Writer    *writer.FileWriter
	Store     store.Store
}

// Close releases the store.
func (p *Pipeline) Close() error {
	if p.Store == nil {
		return nil
	}
	return p.Store.Close()
}

// NewPipeline builds the generator router, writer, store and engine from cfg.
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	if len(cfg.Generator.Providers) == 0 {
		log.Warn().Msg("No model providers configured; set GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY or OLLAMA_HOST")
	}
	gen := generator.NewRouter(GeneratorConfig(cfg.Generator), cfg.Generator.Providers)
	log.Info().
		Str("strategy", cfg.Generator.Strategy).
		Int("providers", len(cfg.Generator.Providers)).
		Strs("drivers", gen.ListDrivers()).
		Msg("✅ Generator router initialized")

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	out := writer.NewFileWriter(cfg.Output.Dir)
	log.Info().Str("dir", out.Dir()).Msg("✅ Dataset writer initialized")

	eng := engine.New(engine.Deps{
		Generator: gen,
		Writer:    out,
		Runs:      st,
		Guardrails: guardrails.NewDefaultEngine(guardrails.Options{
			Policy:           cfg.Guardrails.Policy,
			MaxViolationRate: cfg.Guardrails.MaxViolationRate,
		}),
		Value: analytics.NewEstimator(analytics.ValueConfig{
			TabularSecondsPerItem: cfg.Value.TabularSecondsPerItem,
			QASecondsPerItem:      cfg.Value.QASecondsPerItem,
			HourlyRate:            cfg.Value.HourlyRate,
		}),
		Notifier:         runNotifier(cfg.Notify),
		MaxRegenerations: cfg.Pipeline.MaxRegenerations,
	})
	log.Info().
		Str("guardrail_policy", string(cfg.Guardrails.Policy)).
		Int("max_regenerations", cfg.Pipeline.MaxRegenerations).
		Msg("✅ Generation engine initialized")

	return &Pipeline{Engine: eng, Generator: gen, Writer: out, Store: st}, nil
}

// runNotifier returns the webhook notifier, or a nil interface when no
// webhook is configured.
func runNotifier(c config.NotifyConfig) contracts.RunNotifier {
	w := notify.NewWebhook(notify.Options{URL: c.WebhookURL, Secret: c.WebhookSecret, Events: c.Events})
	if w == nil {
		return nil
	}
	log.Info().Strs("events", c.Events).Msg("📣 Run webhook enabled")
	return w
}

// GeneratorConfig converts the loaded settings into router settings.
func GeneratorConfig(c config.GeneratorConfig) generator.Config {
	return generator.Config{
		Strategy:       c.Strategy,
		CallTimeout:    c.CallTimeout,
		MaxAttempts:    c.MaxAttempts,
		MaxElapsed:     c.MaxElapsed,
		InitialBackoff: c.InitialBackoff,
		RateLimit:      c.RateLimit,
		Burst:          c.Burst,
		Temperature:    float32(c.Temperature),
		MaxTokens:      c.MaxTokens,
	}
}

// OpenStore opens the configured run/feedback store.
func OpenStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		s, err := store.NewSQLStore(ctx, c.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "", "memory":
		s := store.NewMemoryStore(c.DataDir, c.RunTTL)
		log.Info().Msg("✅ In-memory store initialized")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

// Server holds the initialized GeniQ service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	*Pipeline

	// Janitor purges expired dataset files. Started by Start.
	Janitor *writer.Janitor

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes telemetry, the pipeline and the HTTP router.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Server.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	p, err := NewPipeline(ctx, cfg)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	h := handlers.New(p.Engine, p.Store, p.Writer, p.Generator, cfg.Server.Version, cfg.Server.RequestTimeout)
	router := api.NewRouter(cfg, h)
	if len(cfg.Auth.APIKeys) > 0 {
		log.Info().Int("keys", len(cfg.Auth.APIKeys)).Msg("🔐 API key auth enabled")
	}

	return &Server{
		Handler:      router,
		Pipeline:     p,
		Janitor:      writer.NewJanitor(p.Writer.Dir(), cfg.Output.RetentionDays, cfg.Output.JanitorInterval),
		Config:       cfg,
		Port:         cfg.Server.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// Start launches background work (the output janitor) until ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.Janitor.Start(ctx)
}
