// In-memory Store used when no database is configured (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Runs     map[string]*models.Run `json:"runs"`
	Feedback []*models.Feedback     `json:"feedback"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]*models.Run // key: id
	feedback []*models.Feedback     // append-only log

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop

	// Runs older than runTTL are evicted automatically. Zero disables eviction.
	runTTL time.Duration
}

// NewMemoryStore creates a new in-memory store. If dataDir is non-empty, data
// is persisted to dataDir/data.json.
func NewMemoryStore(dataDir string, runTTL time.Duration) *MemoryStore {
	m := &MemoryStore{
		runs:     make(map[string]*models.Run),
		feedback: make([]*models.Feedback, 0),
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		runTTL:   runTTL,
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}
	if m.runTTL > 0 {
		go m.runEvictionLoop()
	}

	log.Info().
		Str("run_ttl", runTTL.String()).
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) runEvictionLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.doneCh:
			return
		case <-ticker.C:
			m.evictExpiredRuns()
		}
	}
}

// evictExpiredRuns removes finished runs older than the configured TTL.
func (m *MemoryStore) evictExpiredRuns() int {
	cutoff := time.Now().Add(-m.runTTL)

	m.mu.Lock()
	var evicted int
	for id, r := range m.runs {
		if r.Status != models.RunStatusRunning && r.CreatedAt.Before(cutoff) {
			delete(m.runs, id)
			evicted++
		}
	}
	m.mu.Unlock()

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Str("ttl", m.runTTL.String()).Msg("Evicted expired runs")
		m.requestSave()
	}
	return evicted
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Runs: m.runs, Feedback: m.feedback}, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Runs != nil {
		m.runs = snap.Runs
	}
	if snap.Feedback != nil {
		m.feedback = snap.Feedback
	}

	// A run left "running" by a crash will never finish.
	interrupted := 0
	for _, r := range m.runs {
		if r.Status == models.RunStatusRunning {
			r.Status = models.RunStatusFailed
			r.Error = "interrupted by restart"
			interrupted++
		}
	}

	log.Info().
		Int("runs", len(m.runs)).
		Int("feedback", len(m.feedback)).
		Int("interrupted", interrupted).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Runs ────────────────────────────────────────────────────

func (m *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	stamp(&run.CreatedAt)
	cp := *run

	m.mu.Lock()
	m.runs[run.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	if _, ok := m.runs[run.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "run", Key: run.ID}
	}
	cp := *run
	m.runs[run.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]models.Run, error) {
	m.mu.RLock()
	result := make([]models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.DatasetType != "" && r.DatasetType != filter.DatasetType {
			continue
		}
		result = append(result, *r)
	}
	m.mu.RUnlock()

	sortRunsNewestFirst(result)
	if limit := limitOrDefault(filter.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ── Feedback ────────────────────────────────────────────────

func (m *MemoryStore) CreateFeedback(_ context.Context, fb *models.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	stamp(&fb.CreatedAt)
	cp := *fb

	m.mu.Lock()
	m.feedback = append(m.feedback, &cp)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListFeedback(_ context.Context, datasetID string, limit int) ([]models.Feedback, error) {
	m.mu.RLock()
	result := make([]models.Feedback, 0, len(m.feedback))
	for _, fb := range m.feedback {
		if datasetID == "" || fb.DatasetID == datasetID {
			result = append(result, *fb)
		}
	}
	m.mu.RUnlock()

	sortFeedbackNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
