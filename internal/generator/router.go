// Package generator implements the GeniQ model router.
//
// The router orders the configured providers by strategy (fallback,
// round-robin, latency-optimized), sends the prompt through the matching
// driver with a bounded per-call timeout, fails over between providers, and
// retries whole rounds with exponential backoff. When every attempt fails the
// caller gets a single GeneratorUnavailable error.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vaisu-bhut/GeniQ/internal/metrics"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Routing strategies.
const (
	StrategyFallback         = "fallback"
	StrategyRoundRobin       = "round-robin"
	StrategyLatencyOptimized = "latency-optimized"
)

// Config tunes call timeouts, retries and throughput.
type Config struct {
	Strategy       string
	CallTimeout    time.Duration
	MaxAttempts    int
	MaxElapsed     time.Duration
	InitialBackoff time.Duration
	RateLimit      float64 // requests per second, 0 disables limiting
	Burst          int
	Temperature    float32
	MaxTokens      int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Strategy:       StrategyFallback,
		CallTimeout:    60 * time.Second,
		MaxAttempts:    3,
		MaxElapsed:     3 * time.Minute,
		InitialBackoff: 500 * time.Millisecond,
		Burst:          1,
		Temperature:    0.7,
		MaxTokens:      8192,
	}
}

// Router routes prompts to configured providers. Safe for concurrent use.
type Router struct {
	cfg       Config
	providers []models.ModelProvider
	client    *http.Client
	limiter   *rate.Limiter

	driverMu sync.RWMutex
	drivers  map[string]contracts.ProviderDriver

	// Round-robin counter (atomic)
	rrCounter uint64

	// Latency tracking: provider name → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[string]int64
}

// NewRouter creates a router over the given providers with the built-in
// drivers registered.
func NewRouter(cfg Config, providers []models.ModelProvider) *Router {
	def := DefaultConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	r := &Router{
		cfg:       cfg,
		providers: append([]models.ModelProvider(nil), providers...),
		client:    &http.Client{Timeout: cfg.CallTimeout + 5*time.Second},
		drivers:   make(map[string]contracts.ProviderDriver),
		latencies: make(map[string]int64),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	opts := DriverOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	r.RegisterDriver(NewOpenAIDriver("openai", r.client, opts))
	r.RegisterDriver(NewOpenAIDriver("azure-openai", r.client, opts))
	r.RegisterDriver(NewAnthropicDriver(r.client, opts))
	r.RegisterDriver(NewOllamaDriver(r.client, opts))
	r.RegisterDriver(NewGeminiDriver(r.client, opts))
	return r
}

// ── Driver Registry ─────────────────────────────────────────

// RegisterDriver adds or replaces the driver for its Kind().
func (r *Router) RegisterDriver(d contracts.ProviderDriver) {
	r.driverMu.Lock()
	r.drivers[d.Kind()] = d
	r.driverMu.Unlock()
}

// GetDriver returns the driver for kind, or nil.
func (r *Router) GetDriver(kind string) contracts.ProviderDriver {
	r.driverMu.RLock()
	defer r.driverMu.RUnlock()
	return r.drivers[kind]
}

// ListDrivers returns the registered driver kinds in sorted order.
func (r *Router) ListDrivers() []string {
	r.driverMu.RLock()
	defer r.driverMu.RUnlock()
	kinds := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Providers returns a copy of the configured providers.
func (r *Router) Providers() []models.ModelProvider {
	return append([]models.ModelProvider(nil), r.providers...)
}

// ── Generate ────────────────────────────────────────────────

// Generate sends the prompt to the first provider that answers, retrying
// rounds with exponential backoff.
func (r *Router) Generate(ctx context.Context, prompt string) (string, error) {
	if len(r.providers) == 0 {
		return "", contracts.NewError(contracts.KindGeneratorUnavailable, "no model providers configured", nil)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", contracts.NewError(contracts.KindGeneratorUnavailable, "rate limiter", err)
		}
	}

	var (
		text     string
		attempts int
	)
	op := func() error {
		attempts++
		out, err := r.round(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialBackoff
	eb.MaxElapsedTime = r.cfg.MaxElapsed
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.cfg.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempts).Dur("backoff", wait).Msg("Generator round failed, retrying")
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", contracts.NewError(contracts.KindGeneratorUnavailable,
			fmt.Sprintf("all providers failed after %d attempt(s)", attempts), err)
	}
	return text, nil
}

// round tries each provider once in strategy order. It returns a permanent
// error when no provider failure is worth retrying.
func (r *Router) round(ctx context.Context, prompt string) (string, error) {
	var (
		lastErr   error
		retryable bool
	)
	for _, p := range r.orderProviders() {
		provider := p
		out, err := r.callProvider(ctx, &provider, prompt)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		log.Warn().
			Str("provider", provider.Name).
			Str("kind", provider.Kind).
			Err(err).
			Msg("Provider call failed, trying next")
		lastErr = err
		if !isPermanent(err) {
			retryable = true
		}
	}
	if !retryable {
		return "", backoff.Permanent(lastErr)
	}
	return "", lastErr
}

func (r *Router) callProvider(ctx context.Context, provider *models.ModelProvider, prompt string) (string, error) {
	driver := r.GetDriver(provider.Kind)
	if driver == nil {
		return "", &permanentError{fmt.Errorf("no driver for provider kind %q", provider.Kind)}
	}

	model := ""
	if len(provider.Models) > 0 {
		model = provider.Models[0]
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	out, err := driver.Complete(callCtx, provider, model, prompt)
	elapsed := time.Since(start)
	metrics.ObserveGeneratorCall(provider.Name, elapsed, err)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%s: call timed out after %s: %w", provider.Name, r.cfg.CallTimeout, err)
		}
		return "", err
	}

	r.recordLatency(provider.Name, elapsed.Milliseconds())
	return out, nil
}

func (r *Router) recordLatency(name string, ms int64) {
	r.latencyMu.Lock()
	defer r.latencyMu.Unlock()
	prev := r.latencies[name]
	if prev == 0 {
		r.latencies[name] = ms
		return
	}
	// Exponential moving average
	r.latencies[name] = (prev*7 + ms*3) / 10
}

// orderProviders sorts a copy of the providers by the routing strategy.
func (r *Router) orderProviders() []models.ModelProvider {
	providers := r.Providers()

	switch r.cfg.Strategy {
	case StrategyLatencyOptimized:
		r.latencyMu.RLock()
		sort.SliceStable(providers, func(i, j int) bool {
			li := r.latencies[providers[i].Name]
			lj := r.latencies[providers[j].Name]
			if li == 0 {
				li = 1000 // default 1s for unknown
			}
			if lj == 0 {
				lj = 1000
			}
			return li < lj
		})
		r.latencyMu.RUnlock()

	case StrategyRoundRobin:
		idx := atomic.AddUint64(&r.rrCounter, 1)
		n := len(providers)
		rotated := make([]models.ModelProvider, n)
		for i := 0; i < n; i++ {
			rotated[i] = providers[(int(idx)+i)%n]
		}
		return rotated

	default:
		// Default providers first, then by name
		sort.SliceStable(providers, func(i, j int) bool {
			if providers[i].IsDefault != providers[j].IsDefault {
				return providers[i].IsDefault
			}
			return providers[i].Name < providers[j].Name
		})
	}
	return providers
}

// HealthCheck pings every configured provider and returns its status.
func (r *Router) HealthCheck(ctx context.Context) map[string]string {
	result := make(map[string]string, len(r.providers))
	for _, p := range r.providers {
		provider := p
		driver := r.GetDriver(provider.Kind)
		if driver == nil {
			result[provider.Name] = "unknown driver: " + provider.Kind
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := driver.HealthCheck(checkCtx, &provider); err != nil {
			result[provider.Name] = "unhealthy: " + err.Error()
		} else {
			result[provider.Name] = "healthy"
		}
		cancel()
	}
	return result
}

// ── Errors ──────────────────────────────────────────────────

// permanentError marks a failure that retrying cannot fix (bad credentials,
// unknown driver, rejected request).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// StatusError is returned by drivers for non-2xx upstream responses.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

func isPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return permanentStatus(se.Code)
	}
	return false
}

// permanentStatus reports whether an HTTP status will not change on retry.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}
