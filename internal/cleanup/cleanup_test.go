package cleanup

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realty-aggregator/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	err = db.AutoMigrate(&models.RawListing{}, &models.Photo{}, &models.PriceChange{})
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func timePtr(tm time.Time) *time.Time { return &tm }

func TestRunDeletesExpiredResidue(t *testing.T) {
	db := newTestDB(t)

	oldMerge := time.Now().AddDate(0, 0, -120)
	db.Create(&models.RawListing{
		SourceURL:   "https://house.kg/old",
		Processed:   true,
		Duplicate:   true,
		ProcessedAt: timePtr(oldMerge),
	})
	recentMerge := time.Now().AddDate(0, 0, -5)
	db.Create(&models.RawListing{
		SourceURL:   "https://house.kg/recent",
		Processed:   true,
		Duplicate:   true,
		ProcessedAt: timePtr(recentMerge),
	})
	db.Create(&models.RawListing{
		SourceURL: "https://house.kg/base",
		Processed: true,
	})
	db.Create(&models.Photo{URL: "u", Status: models.PhotoStatusFailed})
	db.Create(&models.Photo{URL: "v", Status: models.PhotoStatusProcessed})

	s := NewService(db)
	result, err := s.Run(DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.DuplicatesDeleted != 1 {
		t.Errorf("duplicates deleted = %d, want 1", result.DuplicatesDeleted)
	}
	if result.FailedPhotosDeleted != 1 {
		t.Errorf("failed photos deleted = %d, want 1", result.FailedPhotosDeleted)
	}

	var listings, photos int64
	db.Model(&models.RawListing{}).Count(&listings)
	db.Model(&models.Photo{}).Count(&photos)
	if listings != 2 || photos != 1 {
		t.Errorf("remaining listings=%d photos=%d, want 2 and 1", listings, photos)
	}
}

func TestDryRunDeletesNothing(t *testing.T) {
	db := newTestDB(t)

	old := time.Now().AddDate(0, 0, -120)
	db.Create(&models.RawListing{
		SourceURL:   "https://house.kg/old",
		Processed:   true,
		Duplicate:   true,
		ProcessedAt: timePtr(old),
	})

	cfg := DefaultConfig()
	cfg.DryRun = true

	s := NewService(db)
	result, err := s.Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.DuplicatesDeleted != 1 {
		t.Errorf("dry run should count 1 candidate, got %d", result.DuplicatesDeleted)
	}

	var count int64
	db.Model(&models.RawListing{}).Count(&count)
	if count != 1 {
		t.Error("dry run must not delete rows")
	}
}
