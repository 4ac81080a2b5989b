package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaisu-bhut/GeniQ/internal/guardrails"
	"github.com/vaisu-bhut/GeniQ/internal/store"
	"github.com/vaisu-bhut/GeniQ/internal/writer"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// scripted answers the first call (the batch) with batch and every later
// call (single regenerations) with single.
type scripted struct {
	mu     sync.Mutex
	batch  string
	single string
	err    error
	calls  int
}

func (s *scripted) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.calls == 1 {
		return s.batch, nil
	}
	return s.single, nil
}

func ageRequest(rows int) *models.TabularRequest {
	return &models.TabularRequest{
		Columns: []models.ColumnDefinition{{Name: "age", DType: models.DTypeInt, Validation: "value>=18 and value<=35"}},
		NumRows: rows,
		UseCase: "customer survey",
	}
}

type fixture struct {
	engine *Engine
	dir    string
	runs   *store.MemoryStore
}

func newFixture(t *testing.T, gen contracts.Generator, opts guardrails.Options) fixture {
	t.Helper()
	dir := t.TempDir()
	runs := store.NewMemoryStore(t.TempDir(), time.Hour)
	t.Cleanup(func() { runs.Close() })
	e := New(Deps{
		Generator:        gen,
		Writer:           writer.NewFileWriter(dir),
		Runs:             runs,
		Guardrails:       guardrails.NewDefaultEngine(opts),
		MaxRegenerations: 3,
	})
	return fixture{engine: e, dir: dir, runs: runs}
}

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestGenerate_DropsUnrepairableRow(t *testing.T) {
	gen := &scripted{
		batch:  `[{"age": 20}, {"age": 50}, {"age": 25}, {"age": 30}, {"age": 35}]`,
		single: `[{"age": 50}]`,
	}
	f := newFixture(t, gen, guardrails.Options{})
	ctx := WithRequestID(context.Background(), "run-age-0001")

	path, err := f.engine.Generate(ctx, ageRequest(5))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".csv"))

	env, err := writer.Read(path)
	require.NoError(t, err)
	md := env.Metadata
	assert.Len(t, env.Data, 4)
	assert.Equal(t, 5, md.Requested)
	assert.Equal(t, 4, md.Accepted)
	assert.Equal(t, 1, md.Dropped)
	assert.Equal(t, 3, md.Regenerations)
	assert.Equal(t, 1, md.Quality.Validity["age"])
	assert.Equal(t, "run-age-0001", md.RequestID)
	assert.Equal(t, 4, md.Progress.Valid)
	assert.Equal(t, 1, md.Progress.Invalid)
	assert.Equal(t, models.PolicyReportOnly, md.Guardrails.Policy)

	run, err := f.runs.GetRun(context.Background(), "run-age-0001")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, path, run.FilePath)
	assert.Equal(t, 4, run.Accepted)
	assert.NotNil(t, run.CompletedAt)

	_, live := f.engine.Progress("run-age-0001")
	assert.False(t, live, "monitor should be removed after the run")
}

func TestGenerate_GeneratorUnavailableWritesNothing(t *testing.T) {
	gen := &scripted{err: errors.New("connection refused")}
	f := newFixture(t, gen, guardrails.Options{})
	ctx := WithRequestID(context.Background(), "run-down")

	path, err := f.engine.Generate(ctx, ageRequest(3))
	require.Error(t, err)
	assert.Empty(t, path)
	assert.ErrorIs(t, err, contracts.ErrGeneratorUnavailable)
	assert.Empty(t, files(t, f.dir))

	run, err := f.runs.GetRun(context.Background(), "run-down")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, string(contracts.KindGeneratorUnavailable), run.ErrorKind)
}

type brokenWriter struct{ err error }

func (w brokenWriter) Write(context.Context, *models.Envelope, []models.ColumnDefinition, models.OutputFormat) (string, error) {
	return "", w.err
}

func TestGenerate_WriteFailureIsTyped(t *testing.T) {
	runs := store.NewMemoryStore("", 0)
	t.Cleanup(func() { runs.Close() })
	e := New(Deps{
		Generator: &scripted{batch: `[{"age": 20}]`},
		Writer:    brokenWriter{err: errors.New("disk full")},
		Runs:      runs,
	})

	path, err := e.Generate(WithRequestID(context.Background(), "run-disk"), ageRequest(1))
	require.Error(t, err)
	assert.Empty(t, path)
	assert.ErrorIs(t, err, contracts.ErrOutputWriteFailed)
	assert.Equal(t, contracts.KindOutputWriteFailed, contracts.KindOf(err))
	assert.Contains(t, err.Error(), "disk full")

	run, err := runs.GetRun(context.Background(), "run-disk")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, string(contracts.KindOutputWriteFailed), run.ErrorKind)
}

func TestGenerate_Canceled(t *testing.T) {
	gen := &scripted{batch: `[{"age": 20}]`, single: `[{"age": 21}]`}
	f := newFixture(t, gen, guardrails.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Generate(ctx, ageRequest(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, files(t, f.dir))
}

func TestRun_MalformedBatchRegeneratesEverything(t *testing.T) {
	gen := &scripted{batch: "I cannot produce JSON today", single: `[{"age": 22}]`}
	f := newFixture(t, gen, guardrails.Options{})

	env, err := f.engine.Run(context.Background(), ageRequest(3))
	require.NoError(t, err)
	assert.Len(t, env.Data, 3)
	assert.Equal(t, 3, env.Metadata.Regenerations)
	assert.Equal(t, 0, env.Metadata.Dropped)
	assert.Empty(t, files(t, f.dir), "Run must not persist")
}

func TestGenerate_InvalidRequests(t *testing.T) {
	gen := &scripted{batch: `[]`, single: `[]`}
	f := newFixture(t, gen, guardrails.Options{})

	cases := map[string]models.GenerationRequest{
		"no rows":        &models.TabularRequest{Columns: ageRequest(1).Columns, NumRows: 0},
		"no columns":     &models.TabularRequest{NumRows: 3},
		"blocked domain": &models.QARequest{Domain: "Illegal Drugs", NumPairs: 2},
		"weapons":        &models.TabularRequest{Columns: ageRequest(1).Columns, NumRows: 1, Domain: "weapons"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Generate(context.Background(), req)
			assert.ErrorIs(t, err, contracts.ErrInvalidRequest)
		})
	}
	assert.Zero(t, gen.calls, "invalid requests must not reach the generator")

	_, err := f.engine.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, contracts.ErrInvalidRequest)
}

func TestGenerate_QAJSON(t *testing.T) {
	gen := &scripted{
		batch:  `Here you go: [{"question": "What is an index fund?", "answer": "A fund that tracks a market index."}]`,
		single: `[{"question": "What is a bond?", "answer": "A loan to an issuer that pays interest."}]`,
	}
	f := newFixture(t, gen, guardrails.Options{})
	req := &models.QARequest{Domain: "finance", NumPairs: 2, OutputFormat: models.FormatJSON}

	path, err := f.engine.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json"))

	env, err := writer.Read(path)
	require.NoError(t, err)
	require.Len(t, env.Data, 2)
	assert.Equal(t, models.DatasetQA, env.Metadata.DatasetType)
	assert.Equal(t, "finance", env.Metadata.Domain)
	assert.Equal(t, 1, env.Metadata.Regenerations)
}

func TestGenerate_FailClosedBlocksPII(t *testing.T) {
	req := &models.TabularRequest{
		Columns: []models.ColumnDefinition{{Name: "note", DType: models.DTypeStr}},
		NumRows: 2,
		UseCase: "support tickets",
	}
	gen := &scripted{batch: `[{"note": "SSN 123-45-6789"}, {"note": "all good"}]`}

	report := newFixture(t, gen, guardrails.Options{})
	env, err := report.engine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, env.Metadata.Guardrails.Safety.Passed)
	assert.False(t, env.Metadata.Guardrails.Blocked)

	gen = &scripted{batch: gen.batch}
	closed := newFixture(t, gen, guardrails.Options{Policy: models.PolicyFailClosed})
	path, err := closed.engine.Generate(WithRequestID(context.Background(), "run-pii"), req)
	assert.ErrorIs(t, err, contracts.ErrGuardrailBlocked)
	assert.Empty(t, path)
	assert.Empty(t, files(t, closed.dir))

	run, err := closed.runs.GetRun(context.Background(), "run-pii")
	require.NoError(t, err)
	assert.Equal(t, string(contracts.KindGuardrailBlocked), run.ErrorKind)
}

func TestGenerate_ConcurrentRequests(t *testing.T) {
	gen := contracts.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return `[{"age": 21}, {"age": 22}, {"age": 23}]`, nil
	})
	f := newFixture(t, gen, guardrails.Options{})

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = f.engine.Generate(context.Background(), ageRequest(3))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range paths {
		require.NoError(t, errs[i])
		assert.False(t, seen[paths[i]], "duplicate path %s", paths[i])
		seen[paths[i]] = true
	}
	assert.Len(t, files(t, f.dir), 8)
}

func TestNormalizeDomain(t *testing.T) {
	for in, want := range map[string]string{
		"Illegal Drugs":  "illegal_drugs",
		" illegal-drugs": "illegal_drugs",
		"WEAPONS":        "weapons",
	} {
		assert.Equal(t, want, normalizeDomain(in), in)
	}
}

type recordingNotifier chan models.RunEvent

func (n recordingNotifier) Notify(_ context.Context, ev models.RunEvent) error {
	n <- ev
	return nil
}

func TestGenerate_NotifiesOutcome(t *testing.T) {
	events := make(recordingNotifier, 2)
	e := New(Deps{
		Generator: &scripted{batch: `[{"age": 20}]`},
		Writer:    writer.NewFileWriter(t.TempDir()),
		Notifier:  events,
	})

	_, err := e.Generate(WithRequestID(context.Background(), "run-ok"), ageRequest(1))
	require.NoError(t, err)
	select {
	case ev := <-events:
		assert.Equal(t, models.EventRunCompleted, ev.Type)
		assert.Equal(t, "run-ok", ev.Run.ID)
		assert.Equal(t, 1, ev.Run.Accepted)
	case <-time.After(5 * time.Second):
		t.Fatal("no completion event")
	}

	down := New(Deps{
		Generator: &scripted{err: errors.New("timeout")},
		Writer:    writer.NewFileWriter(t.TempDir()),
		Notifier:  events,
	})
	_, err = down.Generate(WithRequestID(context.Background(), "run-bad"), ageRequest(1))
	require.Error(t, err)
	select {
	case ev := <-events:
		assert.Equal(t, models.EventRunFailed, ev.Type)
		assert.Equal(t, string(contracts.KindGeneratorUnavailable), ev.Run.ErrorKind)
	case <-time.After(5 * time.Second):
		t.Fatal("no failure event")
	}
}
