// Package engine orchestrates a generation request end to end:
//
//	validate request → batch generate → validate/regenerate per item →
//	quality, guardrails and efficiency (concurrently) → business value →
//	assemble envelope → persist
//
// Each request runs on the caller's goroutine. The Engine itself is shared
// and holds no per-request state beyond the progress registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vaisu-bhut/GeniQ/internal/analytics"
	"github.com/vaisu-bhut/GeniQ/internal/generator"
	"github.com/vaisu-bhut/GeniQ/internal/guardrails"
	"github.com/vaisu-bhut/GeniQ/internal/metrics"
	"github.com/vaisu-bhut/GeniQ/internal/monitor"
	"github.com/vaisu-bhut/GeniQ/internal/prompt"
	"github.com/vaisu-bhut/GeniQ/internal/quality"
	"github.com/vaisu-bhut/GeniQ/internal/retry"
	"github.com/vaisu-bhut/GeniQ/internal/rules"
	"github.com/vaisu-bhut/GeniQ/internal/store"
	"github.com/vaisu-bhut/GeniQ/internal/telemetry"
	"github.com/vaisu-bhut/GeniQ/internal/validation"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// DefaultBlockedDomains are rejected before any generation happens.
var DefaultBlockedDomains = []string{"weapons", "illegal_drugs"}

// Deps wires the engine's collaborators. Generator and Writer are required;
// everything else has a default.
type Deps struct {
	Generator contracts.Generator
	Writer    contracts.DatasetWriter
	// Runs records every request. Nil disables recording.
	Runs store.RunStore
	// Notifier hears about finished runs. Nil disables notifications.
	Notifier contracts.RunNotifier

	Rules      *rules.Cache
	Quality    *quality.Analyzer
	Guardrails *guardrails.Engine
	Value      *analytics.Estimator
	Monitors   *monitor.Registry

	MaxRegenerations int
	BlockedDomains   []string
}

// Engine runs generation requests. Safe for concurrent use.
type Engine struct {
	gen       contracts.Generator
	writer    contracts.DatasetWriter
	runs      store.RunStore
	notifier  contracts.RunNotifier
	validator *validation.Validator
	retry     *retry.Controller
	quality   *quality.Analyzer
	guard     *guardrails.Engine
	value     *analytics.Estimator
	monitors  *monitor.Registry
	blocked   map[string]bool
	now       func() time.Time
}

// New creates an engine from deps.
func New(d Deps) *Engine {
	if d.Rules == nil {
		d.Rules = rules.NewCache()
	}
	if d.Quality == nil {
		d.Quality = quality.New(quality.DefaultConfig())
	}
	if d.Guardrails == nil {
		d.Guardrails = guardrails.NewDefaultEngine(guardrails.Options{})
	}
	if d.Value == nil {
		d.Value = analytics.NewEstimator(analytics.DefaultValueConfig())
	}
	if d.Monitors == nil {
		d.Monitors = monitor.NewRegistry()
	}
	if d.BlockedDomains == nil {
		d.BlockedDomains = DefaultBlockedDomains
	}

	blocked := make(map[string]bool, len(d.BlockedDomains))
	for _, b := range d.BlockedDomains {
		blocked[normalizeDomain(b)] = true
	}

	v := validation.New(d.Rules)
	return &Engine{
		gen:       d.Generator,
		writer:    d.Writer,
		runs:      d.Runs,
		notifier:  d.Notifier,
		validator: v,
		retry:     retry.New(d.Generator, v, d.MaxRegenerations),
		quality:   d.Quality,
		guard:     d.Guardrails,
		value:     d.Value,
		monitors:  d.Monitors,
		blocked:   blocked,
		now:       time.Now,
	}
}

// Guardrails returns the guardrail engine, for checks over existing datasets.
func (e *Engine) Guardrails() *guardrails.Engine { return e.guard }

// Progress returns live counters for a running request.
func (e *Engine) Progress(requestID string) (models.Progress, bool) {
	return e.monitors.Get(requestID)
}

// ── Request IDs ─────────────────────────────────────────────

type requestIDKey struct{}

// WithRequestID makes the engine use id for the request run under ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// ── Entry points ────────────────────────────────────────────

// Generate runs req and persists the dataset, returning the file path. On
// any fatal error nothing is written and the error is a *GenerationError
// (or the context's error on cancellation).
func (e *Engine) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	env, run, err := e.execute(ctx, req)
	if err != nil {
		return "", err
	}

	ctx, span := telemetry.StartSpan(ctx, "geniq.persist")
	defer span.End()

	var cols []models.ColumnDefinition
	if t, ok := req.(*models.TabularRequest); ok {
		cols = t.Columns
	}
	path, err := e.writer.Write(ctx, env, cols, req.Format())
	if err != nil {
		werr := contracts.NewError(contracts.KindOutputWriteFailed, "write dataset", err)
		span.RecordError(werr)
		e.fail(ctx, run, req, werr)
		return "", werr
	}
	span.SetAttributes(attribute.String("geniq.path", path))

	run.FilePath = path
	e.complete(ctx, run, env)
	return path, nil
}

// Run executes req and returns the envelope without persisting it.
func (e *Engine) Run(ctx context.Context, req models.GenerationRequest) (*models.Envelope, error) {
	env, run, err := e.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	e.complete(ctx, run, env)
	return env, nil
}

// execute runs the pipeline up to the assembled envelope. On error the run
// is already recorded as failed.
func (e *Engine) execute(ctx context.Context, req models.GenerationRequest) (*models.Envelope, *models.Run, error) {
	if req == nil {
		return nil, nil, contracts.NewError(contracts.KindInvalidRequest, "request is nil", nil)
	}
	if err := e.checkRequest(req); err != nil {
		metrics.RequestsTotal.WithLabelValues(string(req.DatasetType()), "rejected").Inc()
		return nil, nil, err
	}

	id := requestIDFrom(ctx)
	ctx, span := telemetry.StartSpan(ctx, "geniq.generate", trace.WithAttributes(
		attribute.String("geniq.request_id", id),
		attribute.String("geniq.dataset_type", string(req.DatasetType())),
		attribute.String("geniq.domain", req.DomainName()),
		attribute.Int("geniq.requested", req.Count()),
	))
	defer span.End()

	run := &models.Run{
		ID:          id,
		DatasetType: req.DatasetType(),
		Domain:      req.DomainName(),
		Format:      req.Format(),
		Status:      models.RunStatusRunning,
		Requested:   req.Count(),
		CreatedAt:   e.now().UTC(),
	}
	e.record(ctx, run, true)

	log.Info().
		Str("request_id", id).
		Str("dataset_type", string(req.DatasetType())).
		Str("domain", run.Domain).
		Int("requested", req.Count()).
		Msg("🧪 Generation started")

	env, err := e.pipeline(ctx, id, req, run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(ctx, run, req, err)
		return nil, nil, err
	}
	return env, run, nil
}

func (e *Engine) pipeline(ctx context.Context, id string, req models.GenerationRequest, run *models.Run) (*models.Envelope, error) {
	mon := monitor.New(id, req.Count())
	e.monitors.Add(mon)
	defer func() {
		run.Progress = mon.Snapshot()
		e.monitors.Remove(id)
	}()

	batch, err := e.generateBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	rctx, rspan := telemetry.StartSpan(ctx, "geniq.repair")
	outcome, err := e.retry.Repair(rctx, req, batch, mon)
	rspan.End()
	if err != nil {
		return nil, err
	}

	a, err := e.analyze(ctx, req, outcome, mon.Elapsed())
	if err != nil {
		return nil, err
	}
	if a.guard.Blocked {
		return nil, contracts.NewError(contracts.KindGuardrailBlocked, fmt.Sprintf(
			"%d flagged items, %d ethics violations in %d items",
			a.guard.Safety.FlaggedItems, a.guard.Compliance.ViolationCount, len(outcome.Accepted)), nil)
	}

	md := models.Metadata{
		GeneratedAt:   e.now().UTC(),
		Version:       models.EnvelopeVersion,
		RequestID:     id,
		DatasetType:   req.DatasetType(),
		Domain:        req.DomainName(),
		Requested:     req.Count(),
		Accepted:      len(outcome.Accepted),
		Dropped:       outcome.Dropped,
		Regenerations: outcome.Regenerations,
		Quality:       a.quality,
		BusinessValue: a.value,
		Efficiency:    a.efficiency,
		Guardrails:    a.guard,
		Progress:      mon.Snapshot(),
	}
	if t, ok := req.(*models.TabularRequest); ok {
		md.Columns = t.Columns
	}
	run.Accepted = md.Accepted
	run.Dropped = md.Dropped
	return &models.Envelope{Data: outcome.Accepted, Metadata: md}, nil
}

// generateBatch asks for the whole dataset in one call. Unparseable output
// degrades to an empty batch so every position goes through regeneration.
func (e *Engine) generateBatch(ctx context.Context, req models.GenerationRequest) ([]models.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "geniq.batch")
	defer span.End()

	raw, err := e.gen.Generate(ctx, prompt.Batch(req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, contracts.ErrGeneratorUnavailable) {
			return nil, err
		}
		return nil, contracts.NewError(contracts.KindGeneratorUnavailable, "batch generation failed", err)
	}

	items, err := generator.ExtractItems(raw)
	if err != nil {
		log.Warn().Err(err).Str("reason", string(contracts.KindMalformedGeneratorOutput)).
			Msg("Batch output unparseable, regenerating every item")
		return nil, nil
	}
	span.SetAttributes(attribute.Int("geniq.batch_items", len(items)))
	return items, nil
}

// ── Analysis ────────────────────────────────────────────────

type analysis struct {
	quality    models.QualityReport
	value      models.BusinessValueReport
	guard      models.GuardrailReport
	efficiency models.EfficiencyReport
}

// analyze runs quality (then business value), guardrails and efficiency
// concurrently over the accepted items.
func (e *Engine) analyze(ctx context.Context, req models.GenerationRequest, o *retry.Outcome, elapsed time.Duration) (*analysis, error) {
	ctx, span := telemetry.StartSpan(ctx, "geniq.analyze")
	defer span.End()

	var a analysis
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.quality = e.quality.Analyze(req, o.Accepted, o.FirstFailures)
		useCase := ""
		if t, ok := req.(*models.TabularRequest); ok {
			useCase = t.UseCase
		}
		a.value = e.value.Estimate(analytics.Outcome{
			DatasetType: req.DatasetType(),
			UseCase:     useCase,
			Requested:   req.Count(),
			Accepted:    len(o.Accepted),
			Dropped:     o.Dropped,
			Quality:     a.quality,
		})
		return gctx.Err()
	})
	g.Go(func() error {
		a.guard = e.guard.Evaluate(o.Accepted, req.DomainName())
		return gctx.Err()
	})
	g.Go(func() error {
		a.efficiency = analytics.Efficiency(len(o.Accepted), elapsed)
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &a, nil
}

// ── Request checks ──────────────────────────────────────────

func (e *Engine) checkRequest(req models.GenerationRequest) error {
	if err := req.Validate(); err != nil {
		return contracts.NewError(contracts.KindInvalidRequest, "request failed validation", err)
	}
	if d := normalizeDomain(req.DomainName()); e.blocked[d] {
		return contracts.NewError(contracts.KindInvalidRequest, fmt.Sprintf("domain %q is not allowed", req.DomainName()), nil)
	}
	return nil
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(d)
}

// ── Run records ─────────────────────────────────────────────

func (e *Engine) complete(ctx context.Context, run *models.Run, env *models.Envelope) {
	md := env.Metadata
	done := e.now().UTC()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &done
	run.CompletenessScore = md.Quality.CompletenessScore
	run.SafetyScore = md.Guardrails.Safety.SafetyScore
	run.ComplianceScore = md.Guardrails.Compliance.ComplianceScore
	e.record(ctx, run, false)
	e.announce(ctx, models.EventRunCompleted, run)

	dt := string(run.DatasetType)
	metrics.RequestsTotal.WithLabelValues(dt, "completed").Inc()
	metrics.RequestDuration.WithLabelValues(dt).Observe(done.Sub(run.CreatedAt).Seconds())
	metrics.ItemsTotal.WithLabelValues(dt, "accepted").Add(float64(md.Accepted))
	metrics.ItemsTotal.WithLabelValues(dt, "dropped").Add(float64(md.Dropped))

	log.Info().
		Str("request_id", run.ID).
		Int("accepted", md.Accepted).
		Int("dropped", md.Dropped).
		Int("regenerations", md.Regenerations).
		Float64("safety_score", run.SafetyScore).
		Str("path", run.FilePath).
		Msg("✅ Generation completed")
}

func (e *Engine) fail(ctx context.Context, run *models.Run, req models.GenerationRequest, err error) {
	outcome := "failed"
	if ctx.Err() != nil {
		outcome = "canceled"
	}
	metrics.RequestsTotal.WithLabelValues(string(req.DatasetType()), outcome).Inc()

	done := e.now().UTC()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &done
	run.Error = err.Error()
	run.ErrorKind = string(contracts.KindOf(err))
	e.record(ctx, run, false)
	e.announce(ctx, models.EventRunFailed, run)

	log.Error().
		Err(err).
		Str("request_id", run.ID).
		Str("kind", run.ErrorKind).
		Msg("❌ Generation failed")
}

// announce hands a copy of run to the notifier on its own goroutine.
func (e *Engine) announce(ctx context.Context, eventType string, run *models.Run) {
	if e.notifier == nil {
		return
	}
	ev := models.RunEvent{Type: eventType, Run: *run, Timestamp: e.now().UTC()}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := e.notifier.Notify(ctx, ev); err != nil {
			log.Debug().Err(err).Str("request_id", ev.Run.ID).Msg("Run notification not delivered")
		}
	}()
}

// record writes the run without letting a canceled request context block
// the final status update.
func (e *Engine) record(ctx context.Context, run *models.Run, create bool) {
	if e.runs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if create {
		err = e.runs.CreateRun(ctx, run)
	} else {
		err = e.runs.UpdateRun(ctx, run)
	}
	if err != nil {
		log.Warn().Err(err).Str("request_id", run.ID).Msg("Failed to record run")
	}
}
