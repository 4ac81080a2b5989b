// Package monitor tracks per-request progress counters.
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// LogEvery is how often (in completed items) progress is logged.
const LogEvery = 10

// Monitor counts completed, valid and invalid items for one request.
// Log is called by the request's goroutine; Snapshot may be called from any
// goroutine (e.g. an HTTP progress poll).
type Monitor struct {
	mu        sync.RWMutex
	requestID string
	total     int
	completed int
	valid     int
	invalid   int
	start     time.Time
	now       func() time.Time
}

// New starts a monitor for a request of total items.
func New(requestID string, total int) *Monitor {
	return newWithClock(requestID, total, time.Now)
}

func newWithClock(requestID string, total int, now func() time.Time) *Monitor {
	return &Monitor{requestID: requestID, total: total, start: now(), now: now}
}

// Log records one finished item.
func (m *Monitor) Log(valid bool) {
	m.mu.Lock()
	m.completed++
	if valid {
		m.valid++
	} else {
		m.invalid++
	}
	completed := m.completed
	m.mu.Unlock()

	if completed%LogEvery == 0 || completed == m.total {
		s := m.Snapshot()
		log.Info().
			Str("request_id", m.requestID).
			Int("completed", s.Completed).
			Int("total", s.Total).
			Int("valid", s.Valid).
			Int("invalid", s.Invalid).
			Int("progress", s.ProgressPercent).
			Float64("eta_seconds", s.EstimatedRemainingSeconds).
			Msg("📊 Generation progress")
	}
}

// Snapshot returns the current counters and timing estimates.
func (m *Monitor) Snapshot() models.Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := m.now().Sub(m.start).Seconds()
	p := models.Progress{
		Total:          m.total,
		Completed:      m.completed,
		Valid:          m.valid,
		Invalid:        m.invalid,
		ElapsedSeconds: elapsed,
	}
	if m.total > 0 {
		p.ProgressPercent = int(math.Min(100, math.Floor(100*float64(m.completed)/float64(m.total))))
	}
	if m.completed > 0 {
		remaining := m.total - m.completed
		if remaining < 0 {
			remaining = 0
		}
		p.EstimatedRemainingSeconds = elapsed / float64(m.completed) * float64(remaining)
	}
	return p
}

// Elapsed returns the time since the monitor started.
func (m *Monitor) Elapsed() time.Duration {
	return m.now().Sub(m.start)
}

// ── Registry ─────────────────────────────────────────────────

// Registry exposes live monitors by request ID for progress polling.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]*Monitor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{monitors: make(map[string]*Monitor)}
}

// Add registers a monitor under its request ID.
func (r *Registry) Add(m *Monitor) {
	r.mu.Lock()
	r.monitors[m.requestID] = m
	r.mu.Unlock()
}

// Remove forgets a request's monitor.
func (r *Registry) Remove(requestID string) {
	r.mu.Lock()
	delete(r.monitors, requestID)
	r.mu.Unlock()
}

// Get returns the live snapshot for a request, if it is still running.
func (r *Registry) Get(requestID string) (models.Progress, bool) {
	r.mu.RLock()
	m, ok := r.monitors[requestID]
	r.mu.RUnlock()
	if !ok {
		return models.Progress{}, false
	}
	return m.Snapshot(), true
}
