package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestSnapshot(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newWithClock("req-1", 4, clock.now)

	s := m.Snapshot()
	assert.Equal(t, 0, s.ProgressPercent)
	assert.Equal(t, 0.0, s.EstimatedRemainingSeconds)

	m.Log(true)
	m.Log(false)
	m.Log(true)
	clock.t = clock.t.Add(6 * time.Second)

	s = m.Snapshot()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 2, s.Valid)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, 75, s.ProgressPercent)
	assert.InDelta(t, 6.0, s.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 2.0, s.EstimatedRemainingSeconds, 1e-9)
}

func TestProgressCappedAt100(t *testing.T) {
	m := New("req-2", 1)
	m.Log(true)
	m.Log(true)
	assert.Equal(t, 100, m.Snapshot().ProgressPercent)
	assert.Equal(t, 0.0, m.Snapshot().EstimatedRemainingSeconds)
}

func TestConcurrentReaders(t *testing.T) {
	m := New("req-3", 100)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.Snapshot()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		m.Log(i%2 == 0)
	}
	wg.Wait()
	s := m.Snapshot()
	assert.Equal(t, 50, s.Valid)
	assert.Equal(t, 50, s.Invalid)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	m := New("req-4", 2)
	r.Add(m)
	m.Log(true)

	p, ok := r.Get("req-4")
	assert.True(t, ok)
	assert.Equal(t, 1, p.Completed)

	r.Remove("req-4")
	_, ok = r.Get("req-4")
	assert.False(t, ok)
}
