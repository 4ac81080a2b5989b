// Package store provides the storage interface and implementations for GeniQ
// run records and user feedback. The in-memory store (with JSON snapshot
// persistence) serves local development and tests; the SQL store uses gorm on
// SQLite.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Store is the primary storage interface.
// All handler code depends on this interface, so the in-memory and SQL
// implementations are interchangeable.
type Store interface {
	RunStore
	FeedbackStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate prepares the schema.
	Migrate(ctx context.Context) error
}

// ── Run Store ───────────────────────────────────────────────

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status      models.RunStatus   // exact match
	DatasetType models.DatasetType // exact match
	Limit       int                // max results (default 100)
}

type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, error)
}

// ── Feedback Store ──────────────────────────────────────────

type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
	// ListFeedback returns feedback newest first. An empty datasetID lists all.
	ListFeedback(ctx context.Context, datasetID string, limit int) ([]models.Feedback, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ── Helpers ─────────────────────────────────────────────────

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 100

// RecentImprovements is how many improvement suggestions a report carries.
const RecentImprovements = 5

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// BuildFeedbackReport aggregates feedback. Entries are expected newest first.
func BuildFeedbackReport(entries []models.Feedback) models.FeedbackReport {
	rep := models.FeedbackReport{
		Count:              len(entries),
		RatingDistribution: make(map[int]int),
		RecentImprovements: make([]string, 0, RecentImprovements),
	}
	if len(entries) == 0 {
		return rep
	}

	sum := 0
	for _, fb := range entries {
		sum += fb.Rating
		rep.RatingDistribution[fb.Rating]++
		if fb.Improvements != "" && len(rep.RecentImprovements) < RecentImprovements {
			rep.RecentImprovements = append(rep.RecentImprovements, fb.Improvements)
		}
	}
	rep.AverageRating = float64(sum) / float64(len(entries))
	return rep
}

func sortRunsNewestFirst(runs []models.Run) {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
}

func sortFeedbackNewestFirst(fbs []models.Feedback) {
	sort.SliceStable(fbs, func(i, j int) bool { return fbs[i].CreatedAt.After(fbs[j].CreatedAt) })
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}
