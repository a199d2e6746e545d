package database

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realty-aggregator/internal/models"
)

func newTestGormDB(t *testing.T) *GormDB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	gdb := NewGormDBFromDB(db)
	if err := gdb.InitSchema(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return gdb
}

func TestGetDuplicateStats(t *testing.T) {
	gdb := newTestGormDB(t)
	db := gdb.DB()

	unique := models.UniqueListing{Title: "base", DuplicatesCount: 2, BaseListingID: 1}
	if err := db.Create(&unique).Error; err != nil {
		t.Fatal(err)
	}
	raws := []models.RawListing{
		{Source: "house", SourceURL: "http://example.com/1", Processed: true, UniqueListingID: &unique.ID},
		{Source: "house", SourceURL: "http://example.com/2", Processed: true, Duplicate: true, UniqueListingID: &unique.ID},
		{Source: "lalafo", SourceURL: "http://example.com/3", Processed: true, Duplicate: true, UniqueListingID: &unique.ID},
		{Source: "lalafo", SourceURL: "http://example.com/4"},
	}
	for i := range raws {
		if err := db.Create(&raws[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	stats, err := gdb.GetDuplicateStats()
	if err != nil {
		t.Fatalf("GetDuplicateStats: %v", err)
	}
	if stats.TotalUniqueListings != 1 || stats.TotalRawListings != 4 {
		t.Errorf("totals = %d unique / %d raw, want 1 / 4", stats.TotalUniqueListings, stats.TotalRawListings)
	}
	if stats.DuplicateListings != 2 || stats.BaseListings != 1 {
		t.Errorf("duplicates = %d, bases = %d, want 2 / 1", stats.DuplicateListings, stats.BaseListings)
	}
	if stats.UnprocessedListings != 1 {
		t.Errorf("unprocessed = %d, want 1", stats.UnprocessedListings)
	}
	if stats.UniqueListingsWithDupes != 1 {
		t.Errorf("unique with dupes = %d, want 1", stats.UniqueListingsWithDupes)
	}
	if stats.DeduplicationRatioPercent != 50.0 {
		t.Errorf("dedup ratio = %v, want 50", stats.DeduplicationRatioPercent)
	}
}

func TestGetRealtorStats(t *testing.T) {
	gdb := newTestGormDB(t)
	db := gdb.DB()

	realtor := models.Realtor{PhoneNumber: "0700111222", TotalAdsCount: 5, Confidence: 5}
	if err := db.Create(&realtor).Error; err != nil {
		t.Fatal(err)
	}
	listings := []models.UniqueListing{
		{Title: "realtor ad", IsRealtor: true, RealtorID: &realtor.ID, BaseListingID: 1},
		{Title: "private ad", BaseListingID: 2},
	}
	for i := range listings {
		if err := db.Create(&listings[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	stats, err := gdb.GetRealtorStats()
	if err != nil {
		t.Fatalf("GetRealtorStats: %v", err)
	}
	if stats.TotalRealtors != 1 {
		t.Errorf("realtors = %d, want 1", stats.TotalRealtors)
	}
	if stats.RealtorUniqueAds != 1 || stats.TotalUniqueAds != 2 {
		t.Errorf("realtor ads = %d of %d, want 1 of 2", stats.RealtorUniqueAds, stats.TotalUniqueAds)
	}
}
