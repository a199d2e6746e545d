package cleanup

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"realty-aggregator/internal/models"
)

// Service physically deletes rows that only exist as processing residue:
// raw listings long since merged away, photos that permanently failed to
// fetch and price observations past their retention window.
type Service struct {
	db *gorm.DB
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Config holds retention settings for one cleanup run
type Config struct {
	DuplicateRetentionDays int  // merged raw listings older than this are deleted
	ChangeRetentionDays    int  // price observations older than this are deleted
	MaxDeletionCount       int  // safety limit per table per run
	DryRun                 bool // only count, delete nothing
}

// DefaultConfig returns default retention settings
func DefaultConfig() Config {
	return Config{
		DuplicateRetentionDays: 90,
		ChangeRetentionDays:    180,
		MaxDeletionCount:       10000,
		DryRun:                 false,
	}
}

// Result holds the outcome of a cleanup run
type Result struct {
	DuplicatesDeleted   int       `json:"duplicates_deleted"`
	FailedPhotosDeleted int       `json:"failed_photos_deleted"`
	ChangesDeleted      int       `json:"changes_deleted"`
	DryRun              bool      `json:"dry_run"`
	ExecutedAt          time.Time `json:"executed_at"`
}

// Run executes one cleanup pass with the given retention settings.
func (s *Service) Run(cfg Config) (*Result, error) {
	result := &Result{
		DryRun:     cfg.DryRun,
		ExecutedAt: time.Now(),
	}

	dupCutoff := time.Now().AddDate(0, 0, -cfg.DuplicateRetentionDays)
	n, err := s.deleteWhere(cfg, &models.RawListing{},
		"duplicate = ? AND processed_at < ?", true, dupCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to clean merged raw listings: %w", err)
	}
	result.DuplicatesDeleted = n

	n, err = s.deleteWhere(cfg, &models.Photo{},
		"status = ?", models.PhotoStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to clean failed photos: %w", err)
	}
	result.FailedPhotosDeleted = n

	changeCutoff := time.Now().AddDate(0, 0, -cfg.ChangeRetentionDays)
	n, err = s.deleteWhere(cfg, &models.PriceChange{},
		"detected_at < ?", changeCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to clean price observations: %w", err)
	}
	result.ChangesDeleted = n

	log.Printf("Cleanup: %d merged listings, %d failed photos, %d observations (dry_run=%v)",
		result.DuplicatesDeleted, result.FailedPhotosDeleted, result.ChangesDeleted, cfg.DryRun)
	return result, nil
}

// deleteWhere removes up to MaxDeletionCount matching rows, or only counts
// them in dry-run mode.
func (s *Service) deleteWhere(cfg Config, model interface{}, query string, args ...interface{}) (int, error) {
	if cfg.DryRun {
		var count int64
		if err := s.db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
			return 0, err
		}
		if cfg.MaxDeletionCount > 0 && count > int64(cfg.MaxDeletionCount) {
			count = int64(cfg.MaxDeletionCount)
		}
		return int(count), nil
	}

	var ids []int64
	q := s.db.Model(model).Where(query, args...)
	if cfg.MaxDeletionCount > 0 {
		q = q.Limit(cfg.MaxDeletionCount)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.Where("id IN ?", ids).Delete(model)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
