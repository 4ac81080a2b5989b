package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// runRecord is the table shape of models.Run.
type runRecord struct {
	ID                string          `gorm:"primaryKey;size:36"`
	DatasetType       string          `gorm:"size:16;index"`
	Domain            string          `gorm:"size:64"`
	Format            string          `gorm:"size:8"`
	Status            string          `gorm:"size:16;index"`
	Requested         int             `gorm:"default:0"`
	Accepted          int             `gorm:"default:0"`
	Dropped           int             `gorm:"default:0"`
	FilePath          string          `gorm:"size:1024"`
	Error             string          `gorm:"type:text"`
	ErrorKind         string          `gorm:"size:64"`
	CompletenessScore float64         `gorm:"default:0"`
	SafetyScore       float64         `gorm:"default:0"`
	ComplianceScore   float64         `gorm:"default:0"`
	Progress          models.Progress `gorm:"serializer:json"`
	CreatedAt         time.Time       `gorm:"index"`
	CompletedAt       *time.Time
}

func (runRecord) TableName() string { return "runs" }

// feedbackRecord is the table shape of models.Feedback.
type feedbackRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	DatasetID    string    `gorm:"size:255;index"`
	Rating       int       `gorm:"not null"`
	Comments     string    `gorm:"type:text"`
	Improvements string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index"`
}

func (feedbackRecord) TableName() string { return "feedback" }

// SQLStore implements Store on gorm with the pure-Go SQLite driver.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens the SQLite database at dsn (":memory:" for an ephemeral
// database) and migrates the schema.
func NewSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Info().Str("dsn", dsn).Msg("🗄️  SQL store ready")
	return s, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&runRecord{}, &feedbackRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// ── Runs ────────────────────────────────────────────────────

func (s *SQLStore) CreateRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	stamp(&run.CreatedAt)
	rec := toRunRecord(run)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) UpdateRun(ctx context.Context, run *models.Run) error {
	rec := toRunRecord(run)
	res := s.db.WithContext(ctx).Model(&runRecord{}).Where("id = ?", run.ID).Select("*").Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("update run %s: %w", run.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &ErrNotFound{Entity: "run", Key: run.ID}
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	run := rec.toModel()
	return &run, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, error) {
	q := s.db.WithContext(ctx).Model(&runRecord{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.DatasetType != "" {
		q = q.Where("dataset_type = ?", string(filter.DatasetType))
	}
	var recs []runRecord
	if err := q.Order("created_at DESC").Limit(limitOrDefault(filter.Limit)).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]models.Run, len(recs))
	for i := range recs {
		runs[i] = recs[i].toModel()
	}
	return runs, nil
}

// ── Feedback ────────────────────────────────────────────────

func (s *SQLStore) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	stamp(&fb.CreatedAt)
	rec := feedbackRecord{
		ID:           fb.ID,
		DatasetID:    fb.DatasetID,
		Rating:       fb.Rating,
		Comments:     fb.Comments,
		Improvements: fb.Improvements,
		CreatedAt:    fb.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

func (s *SQLStore) ListFeedback(ctx context.Context, datasetID string, limit int) ([]models.Feedback, error) {
	q := s.db.WithContext(ctx).Model(&feedbackRecord{}).Order("created_at DESC")
	if datasetID != "" {
		q = q.Where("dataset_id = ?", datasetID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []feedbackRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	out := make([]models.Feedback, len(recs))
	for i, r := range recs {
		out[i] = models.Feedback{
			ID:           r.ID,
			DatasetID:    r.DatasetID,
			Rating:       r.Rating,
			Comments:     r.Comments,
			Improvements: r.Improvements,
			CreatedAt:    r.CreatedAt,
		}
	}
	return out, nil
}

// ── Mapping ─────────────────────────────────────────────────

func toRunRecord(r *models.Run) runRecord {
	return runRecord{
		ID:                r.ID,
		DatasetType:       string(r.DatasetType),
		Domain:            r.Domain,
		Format:            string(r.Format),
		Status:            string(r.Status),
		Requested:         r.Requested,
		Accepted:          r.Accepted,
		Dropped:           r.Dropped,
		FilePath:          r.FilePath,
		Error:             r.Error,
		ErrorKind:         r.ErrorKind,
		CompletenessScore: r.CompletenessScore,
		SafetyScore:       r.SafetyScore,
		ComplianceScore:   r.ComplianceScore,
		Progress:          r.Progress,
		CreatedAt:         r.CreatedAt,
		CompletedAt:       r.CompletedAt,
	}
}

func (r runRecord) toModel() models.Run {
	return models.Run{
		ID:                r.ID,
		DatasetType:       models.DatasetType(r.DatasetType),
		Domain:            r.Domain,
		Format:            models.OutputFormat(r.Format),
		Status:            models.RunStatus(r.Status),
		Requested:         r.Requested,
		Accepted:          r.Accepted,
		Dropped:           r.Dropped,
		FilePath:          r.FilePath,
		Error:             r.Error,
		ErrorKind:         r.ErrorKind,
		CompletenessScore: r.CompletenessScore,
		SafetyScore:       r.SafetyScore,
		ComplianceScore:   r.ComplianceScore,
		Progress:          r.Progress,
		CreatedAt:         r.CreatedAt,
		CompletedAt:       r.CompletedAt,
	}
}
