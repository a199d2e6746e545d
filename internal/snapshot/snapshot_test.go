package snapshot

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
	if err := db.AutoMigrate(&models.PriceChange{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func floatPtr(v float64) *float64 { return &v }

func TestRecordPriceObservation(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	// equal prices are not recorded
	if err := s.RecordPriceObservation(db, 1, floatPtr(500), floatPtr(500), "house"); err != nil {
		t.Fatal(err)
	}
	// both absent is not recorded
	if err := s.RecordPriceObservation(db, 1, nil, nil, "house"); err != nil {
		t.Fatal(err)
	}
	var count int64
	db.Model(&models.PriceChange{}).Count(&count)
	if count != 0 {
		t.Fatalf("recorded %d changes for non-changes", count)
	}

	if err := s.RecordPriceObservation(db, 1, floatPtr(500), floatPtr(520), "lalafo"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPriceObservation(db, 1, nil, floatPtr(510), "stroka"); err != nil {
		t.Fatal(err)
	}

	changes, err := s.GetHistory(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("history = %d rows, want 2", len(changes))
	}
}

func TestRecentChangesWindow(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	old := models.PriceChange{UniqueListingID: 1, NewPrice: floatPtr(100)}
	if err := db.Create(&old).Error; err != nil {
		t.Fatal(err)
	}
	db.Model(&old).Update("detected_at", time.Now().Add(-48*time.Hour))

	recent := models.PriceChange{UniqueListingID: 2, NewPrice: floatPtr(200)}
	if err := db.Create(&recent).Error; err != nil {
		t.Fatal(err)
	}

	changes, err := s.RecentChanges(24*time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].UniqueListingID != 2 {
		t.Errorf("recent changes = %+v, want only the fresh row", changes)
	}
}
