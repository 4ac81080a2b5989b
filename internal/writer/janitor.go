package writer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRetentionDays is how long generated datasets are kept on disk.
const DefaultRetentionDays = 7

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Scanned int
	Purged  int
	Errors  []error
}

// Janitor periodically deletes dataset files older than the retention window.
type Janitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a janitor over dir. A non-positive retention disables
// purging; intervals below one minute are raised to one hour.
func NewJanitor(dir string, retentionDays int, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{
		dir:      dir,
		maxAge:   time.Duration(retentionDays) * 24 * time.Hour,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs retention cycles until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	if j.maxAge <= 0 {
		log.Info().Msg("Dataset retention disabled")
		return
	}
	log.Info().
		Str("dir", j.dir).
		Dur("max_age", j.maxAge).
		Dur("interval", j.interval).
		Msg("🧹 Dataset janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runCycle()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Dataset janitor stopped")
			return
		case <-ticker.C:
			j.runCycle()
		}
	}
}

func (j *Janitor) runCycle() {
	start := j.now()
	stats := j.Sweep()
	for _, e := range stats.Errors {
		log.Warn().Err(e).Msg("Retention cycle error")
	}
	if stats.Purged > 0 {
		log.Info().
			Int("purged", stats.Purged).
			Int("scanned", stats.Scanned).
			Dur("elapsed", j.now().Sub(start)).
			Msg("Retention cycle complete")
	}
}

// Sweep deletes expired dataset files once and reports what it did.
// Leftover temp files from interrupted writes are removed as well.
func (j *Janitor) Sweep() CycleStats {
	var stats CycleStats
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			stats.Errors = append(stats.Errors, err)
		}
		return stats
	}

	cutoff := j.now().Add(-j.maxAge)
	for _, e := range entries {
		if e.IsDir() || !isDatasetFile(e.Name()) {
			continue
		}
		stats.Scanned++
		info, err := e.Info()
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Purged++
	}
	return stats
}

func isDatasetFile(name string) bool {
	if strings.HasPrefix(name, ".geniq-") && strings.HasSuffix(name, ".tmp") {
		return true
	}
	ext := filepath.Ext(name)
	return ext == ".csv" || ext == ".json"
}
