// GeniQ server: synthetic dataset generation over HTTP.
//
// It provides:
//   - Tabular and Q&A dataset generation (CSV / JSON attachments)
//   - Per-item validation with bounded regeneration
//   - Content safety and ethical compliance guardrails
//   - Quality, business value and efficiency reports
//   - Run history and dataset feedback
//   - Prometheus metrics and OpenTelemetry tracing

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/internal/config"
	"github.com/vaisu-bhut/GeniQ/pkg/server"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if os.Getenv("GENIQ_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("🧬 GeniQ starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	defer srv.Close()
	defer srv.ShutdownFunc(context.Background())

	srv.Start(ctx)

	// Generation requests block until the file is written, so the write
	// timeout follows the request timeout.
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.Port),
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
	}()

	log.Info().
		Int("port", srv.Port).
		Str("version", cfg.Server.Version).
		Msg("🚀 GeniQ is ready")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-drained
}
