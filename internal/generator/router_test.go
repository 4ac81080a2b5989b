package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vaisu-bhut/GeniQ/internal/generator"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// mockDriver is a test ProviderDriver whose Complete is scripted per call.
type mockDriver struct {
	kind  string
	calls int32
	fn    func(call int) (string, error)
}

func (d *mockDriver) Kind() string { return d.kind }
func (d *mockDriver) Complete(ctx context.Context, provider *models.ModelProvider, model, prompt string) (string, error) {
	n := int(atomic.AddInt32(&d.calls, 1))
	if d.fn == nil {
		return "mock response from " + provider.Name, nil
	}
	return d.fn(n)
}
func (d *mockDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	return nil
}

func testConfig() generator.Config {
	cfg := generator.DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.CallTimeout = time.Second
	return cfg
}

func newTestRouter(t *testing.T, providers ...models.ModelProvider) *generator.Router {
	t.Helper()
	return generator.NewRouter(testConfig(), providers)
}

func TestBuiltinDriversRegistered(t *testing.T) {
	r := newTestRouter(t)

	drivers := r.ListDrivers()
	expected := []string{"openai", "azure-openai", "anthropic", "ollama", "gemini"}

	for _, exp := range expected {
		found := false
		for _, d := range drivers {
			if d == exp {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in driver %q not found in %v", exp, drivers)
		}
	}
}

func TestRegisterDriver_Overrides(t *testing.T) {
	r := newTestRouter(t, models.ModelProvider{Name: "primary", Kind: "openai"})
	r.RegisterDriver(&mockDriver{kind: "openai"})

	out, err := r.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "mock response from primary" {
		t.Errorf("Generate() = %q, want %q", out, "mock response from primary")
	}
}

func TestGetDriver_NotFound(t *testing.T) {
	r := newTestRouter(t)
	if got := r.GetDriver("nonexistent"); got != nil {
		t.Errorf("GetDriver() for nonexistent should return nil, got %v", got)
	}
}

func TestGenerate_FailsOverToNextProvider(t *testing.T) {
	r := newTestRouter(t,
		models.ModelProvider{Name: "a-broken", Kind: "broken", IsDefault: true},
		models.ModelProvider{Name: "b-good", Kind: "good"},
	)
	broken := &mockDriver{kind: "broken", fn: func(int) (string, error) { return "", errors.New("connection refused") }}
	r.RegisterDriver(broken)
	r.RegisterDriver(&mockDriver{kind: "good"})

	out, err := r.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "mock response from b-good" {
		t.Errorf("Generate() = %q", out)
	}
	if broken.calls != 1 {
		t.Errorf("default provider calls = %d, want 1", broken.calls)
	}
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	r := newTestRouter(t, models.ModelProvider{Name: "flaky", Kind: "flaky"})
	flaky := &mockDriver{kind: "flaky", fn: func(call int) (string, error) {
		if call < 3 {
			return "", &generator.StatusError{Provider: "flaky", Code: http.StatusServiceUnavailable}
		}
		return "[]", nil
	}}
	r.RegisterDriver(flaky)

	out, err := r.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "[]" || flaky.calls != 3 {
		t.Errorf("Generate() = %q after %d calls, want [] after 3", out, flaky.calls)
	}
}

func TestGenerate_UnavailableAfterAttempts(t *testing.T) {
	r := newTestRouter(t, models.ModelProvider{Name: "down", Kind: "down"})
	down := &mockDriver{kind: "down", fn: func(int) (string, error) { return "", errors.New("timeout") }}
	r.RegisterDriver(down)

	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, contracts.ErrGeneratorUnavailable) {
		t.Fatalf("Generate() error = %v, want GeneratorUnavailable", err)
	}
	if down.calls != 3 {
		t.Errorf("calls = %d, want 3", down.calls)
	}
}

func TestGenerate_PermanentErrorNotRetried(t *testing.T) {
	r := newTestRouter(t, models.ModelProvider{Name: "denied", Kind: "denied"})
	denied := &mockDriver{kind: "denied", fn: func(int) (string, error) {
		return "", &generator.StatusError{Provider: "denied", Code: http.StatusUnauthorized}
	}}
	r.RegisterDriver(denied)

	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, contracts.ErrGeneratorUnavailable) {
		t.Fatalf("Generate() error = %v, want GeneratorUnavailable", err)
	}
	if denied.calls != 1 {
		t.Errorf("calls = %d, want 1", denied.calls)
	}
}

func TestGenerate_NoProviders(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Generate(context.Background(), "prompt")
	if !errors.Is(err, contracts.ErrGeneratorUnavailable) {
		t.Fatalf("Generate() error = %v, want GeneratorUnavailable", err)
	}
}

func TestGenerate_ContextCanceled(t *testing.T) {
	r := newTestRouter(t, models.ModelProvider{Name: "slow", Kind: "slow"})
	r.RegisterDriver(&slowDriver{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Generate(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
}

type slowDriver struct{}

func (slowDriver) Kind() string { return "slow" }
func (slowDriver) Complete(ctx context.Context, _ *models.ModelProvider, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
func (slowDriver) HealthCheck(context.Context, *models.ModelProvider) error { return nil }

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t,
		models.ModelProvider{Name: "ok", Kind: "healthy"},
		models.ModelProvider{Name: "mystery", Kind: "unknown-kind"},
	)
	r.RegisterDriver(&mockDriver{kind: "healthy"})

	result := r.HealthCheck(context.Background())
	if result["ok"] != "healthy" {
		t.Errorf("HealthCheck()[ok] = %q, want healthy", result["ok"])
	}
	if result["mystery"] == "healthy" {
		t.Errorf("HealthCheck()[mystery] = healthy, want unknown driver")
	}
}

func TestGeminiDriver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": `[{"a":1}]`}}}},
			},
		})
	}))
	defer srv.Close()

	r := newTestRouter(t, models.ModelProvider{
		Name: "g", Kind: "gemini", Endpoint: srv.URL, APIKey: "k", Models: []string{"gemini-test"},
	})
	out, err := r.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != `[{"a":1}]` {
		t.Errorf("Generate() = %q", out)
	}
}

func TestOpenAIDriverViaOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "x",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": "[]"}}},
		})
	}))
	defer srv.Close()

	r := newTestRouter(t, models.ModelProvider{Name: "local", Kind: "ollama", Endpoint: srv.URL})
	out, err := r.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "[]" {
		t.Errorf("Generate() = %q, want []", out)
	}
}
