// Package handlers implements the HTTP handlers for the GeniQ service.
// Generation handlers block until the dataset is written and then stream
// the file back as an attachment.
package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/internal/engine"
	"github.com/vaisu-bhut/GeniQ/internal/store"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// ProviderHealth reports per-provider generator health.
// Implementation: internal/generator.Router
type ProviderHealth interface {
	HealthCheck(ctx context.Context) map[string]string
}

// OutputHealth reports whether datasets can be written.
// Implementation: internal/writer.FileWriter
type OutputHealth interface {
	HealthCheck(ctx context.Context) error
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine    *engine.Engine
	Store     store.Store
	Output    OutputHealth
	Providers ProviderHealth
	Version   string
	// RequestTimeout bounds a generation request. Zero means no bound
	// beyond the client's own connection.
	RequestTimeout time.Duration
}

// New creates a new Handlers instance with all dependencies.
func New(eng *engine.Engine, s store.Store, out OutputHealth, providers ProviderHealth, version string, timeout time.Duration) *Handlers {
	return &Handlers{
		Engine:         eng,
		Store:          s,
		Output:         out,
		Providers:      providers,
		Version:        version,
		RequestTimeout: timeout,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Health ───────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Providers map[string]string `json:"providers,omitempty"`
}

// Health reports store and output health (fatal) and generator health
// (degraded only).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:  "healthy",
		Service: "geniq",
		Version: h.Version,
		Checks:  map[string]string{},
	}
	code := http.StatusOK

	check := func(name string, err error) {
		if err != nil {
			resp.Checks[name] = "unhealthy: " + err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			return
		}
		resp.Checks[name] = "healthy"
	}
	if h.Store != nil {
		check("store", h.Store.Ping(ctx))
	}
	if h.Output != nil {
		check("output", h.Output.HealthCheck(ctx))
	}

	if h.Providers != nil {
		resp.Providers = h.Providers.HealthCheck(ctx)
		healthy := 0
		for _, s := range resp.Providers {
			if s == "healthy" {
				healthy++
			}
		}
		if healthy == 0 && resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	render.Status(r, code)
	render.JSON(w, r, resp)
}

// ══════════════════════════════════════════════════════════════
// ── Generation ───────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) GenerateTabular(w http.ResponseWriter, r *http.Request) {
	var req models.TabularRequest
	if !decode(w, r, &req) {
		return
	}
	h.generate(w, r, &req)
}

func (h *Handlers) GenerateQA(w http.ResponseWriter, r *http.Request) {
	var req models.QARequest
	if !decode(w, r, &req) {
		return
	}
	h.generate(w, r, &req)
}

func (h *Handlers) generate(w http.ResponseWriter, r *http.Request, req models.GenerationRequest) {
	ctx := r.Context()
	if h.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RequestTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	w.Header().Set("X-Run-Id", runID)

	path, err := h.Engine.Generate(engine.WithRequestID(ctx, runID), req)
	if err != nil {
		respondGenerationError(w, r, err)
		return
	}
	serveDataset(w, r, path, req.Format())
}

// serveDataset streams the written file as an attachment.
func serveDataset(w http.ResponseWriter, r *http.Request, path string, format models.OutputFormat) {
	f, err := os.Open(path)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "dataset written but unreadable: "+err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", MediaType(format))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// MediaType returns the response media type for an output format.
func MediaType(format models.OutputFormat) string {
	if format == models.FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// ══════════════════════════════════════════════════════════════
// ── Guardrail Check ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// CheckRequest runs the guardrails over caller-supplied items.
type CheckRequest struct {
	Domain string        `json:"domain"`
	Data   []models.Item `json:"data"`
}

func (h *Handlers) CheckGuardrails(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		respondError(w, r, http.StatusBadRequest, "data must contain at least one item")
		return
	}
	report := h.Engine.Guardrails().Evaluate(req.Data, req.Domain)
	render.JSON(w, r, report)
}

// ══════════════════════════════════════════════════════════════
// ── Runs ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:      models.RunStatus(q.Get("status")),
		DatasetType: models.DatasetType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	for i := range runs {
		h.overlayProgress(&runs[i])
	}
	render.JSON(w, r, runs)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runId")
	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, r, http.StatusNotFound, err.Error())
		} else {
			respondError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.overlayProgress(run)
	render.JSON(w, r, run)
}

// overlayProgress replaces a running record's stored progress with the live
// monitor counters.
func (h *Handlers) overlayProgress(run *models.Run) {
	if run.Status != models.RunStatusRunning {
		return
	}
	if p, ok := h.Engine.Progress(run.ID); ok {
		run.Progress = p
	}
}

// ══════════════════════════════════════════════════════════════
// ── Feedback ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if !decode(w, r, &fb) {
		return
	}
	if err := fb.Validate(); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	fb.ID = uuid.NewString()
	fb.CreatedAt = time.Now().UTC()

	if err := h.Store.CreateFeedback(r.Context(), &fb); err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("dataset_id", fb.DatasetID).Int("rating", fb.Rating).Msg("📝 Feedback recorded")
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, fb)
}

func (h *Handlers) FeedbackReport(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListFeedback(r.Context(), r.URL.Query().Get("dataset_id"), 0)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, store.BuildFeedbackReport(entries))
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// decode reads a bounded JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrGuardrailBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contracts.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, StatusFor(err))
	render.JSON(w, r, errorResponse{Error: err.Error(), Kind: string(contracts.KindOf(err))})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: message})
}
