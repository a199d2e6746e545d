package realtor

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realty-aggregator/internal/config"
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
	err = db.AutoMigrate(
		&models.RawListing{},
		&models.UniqueListing{},
		&models.UniquePhoto{},
		&models.Realtor{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func seedListingsWithPhone(t *testing.T, db *gorm.DB, phone string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		l := models.UniqueListing{
			Title:        fmt.Sprintf("listing %s %d", phone, i),
			PhoneNumbers: []string{phone},
		}
		if err := db.Create(&l).Error; err != nil {
			t.Fatal(err)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+996 700 111-222", "0700111222"},
		{"0700111222", "0700111222"},
		{"(0555) 333 444", "0555333444"},
		{"12345", ""},
		{"", ""},
		{"996700111222", "0700111222"}, // last 10 digits kept
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDetectPromotesAtThreshold(t *testing.T) {
	db := newTestDB(t)
	d := NewDetector(db, config.RealtorConfig{Threshold: 3})

	seedListingsWithPhone(t, db, "0700111222", 3)
	seedListingsWithPhone(t, db, "0555333444", 2)

	res, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.RealtorsFound != 1 {
		t.Fatalf("realtors found = %d, want 1", res.RealtorsFound)
	}

	var realtor models.Realtor
	if err := db.Where("phone_number = ?", "0700111222").First(&realtor).Error; err != nil {
		t.Fatalf("realtor profile not created: %v", err)
	}
	if realtor.TotalAdsCount != 3 || realtor.Confidence != 3 {
		t.Errorf("realtor = %+v, want count 3 confidence 3", realtor)
	}

	var marked int64
	db.Model(&models.UniqueListing{}).Where("realtor_id = ?", realtor.ID).Count(&marked)
	if marked != 3 {
		t.Errorf("marked listings = %d, want 3", marked)
	}

	var below int64
	db.Model(&models.Realtor{}).Where("phone_number = ?", "0555333444").Count(&below)
	if below != 0 {
		t.Error("below-threshold phone must not get a profile")
	}
}

func TestDetectDemotesWhenCountDrops(t *testing.T) {
	db := newTestDB(t)
	d := NewDetector(db, config.RealtorConfig{Threshold: 3})

	seedListingsWithPhone(t, db, "0700111222", 3)
	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// remove one listing, dropping the phone below the threshold
	var victim models.UniqueListing
	if err := db.First(&victim).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(&victim).Error; err != nil {
		t.Fatal(err)
	}

	res, err := d.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.RealtorsRemoved != 1 {
		t.Fatalf("realtors removed = %d, want 1", res.RealtorsRemoved)
	}

	var profiles int64
	db.Model(&models.Realtor{}).Count(&profiles)
	if profiles != 0 {
		t.Error("realtor profile should be deleted after demotion")
	}

	var stillMarked int64
	db.Model(&models.UniqueListing{}).Where("realtor_id IS NOT NULL").Count(&stillMarked)
	if stillMarked != 0 {
		t.Errorf("%d listings still reference a deleted realtor", stillMarked)
	}
}

func TestDetectConfidenceNeverDecreases(t *testing.T) {
	db := newTestDB(t)
	d := NewDetector(db, config.RealtorConfig{Threshold: 3})

	seedListingsWithPhone(t, db, "0700111222", 5)
	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// drop to 3 listings, still at threshold
	var listings []models.UniqueListing
	if err := db.Limit(2).Find(&listings).Error; err != nil {
		t.Fatal(err)
	}
	for _, l := range listings {
		if err := db.Delete(&l).Error; err != nil {
			t.Fatal(err)
		}
	}

	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var realtor models.Realtor
	if err := db.Where("phone_number = ?", "0700111222").First(&realtor).Error; err != nil {
		t.Fatal(err)
	}
	if realtor.TotalAdsCount != 3 {
		t.Errorf("total ads = %d, want 3 after recount", realtor.TotalAdsCount)
	}
	if realtor.Confidence != 5 {
		t.Errorf("confidence = %v, want 5 (monotonic)", realtor.Confidence)
	}
}

func TestDetectListingScoreNeverDecreases(t *testing.T) {
	db := newTestDB(t)
	d := NewDetector(db, config.RealtorConfig{Threshold: 3})

	seedListingsWithPhone(t, db, "0700111222", 6)
	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// one listing disappears; the count drops to 5 but stays at threshold
	var victim models.UniqueListing
	if err := db.First(&victim).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(&victim).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var listings []models.UniqueListing
	if err := db.Find(&listings).Error; err != nil {
		t.Fatal(err)
	}
	for _, l := range listings {
		if l.RealtorScore == nil || *l.RealtorScore != 6 {
			t.Errorf("listing %d realtor_score = %v, want 6 (monotonic)", l.ID, l.RealtorScore)
		}
	}
}

func TestDetectStampsRawListings(t *testing.T) {
	db := newTestDB(t)
	d := NewDetector(db, config.RealtorConfig{Threshold: 3})

	seedListingsWithPhone(t, db, "0700111222", 3)
	var uniques []models.UniqueListing
	if err := db.Find(&uniques).Error; err != nil {
		t.Fatal(err)
	}
	for i, u := range uniques {
		raw := models.RawListing{
			Source:          "house",
			SourceURL:       fmt.Sprintf("http://example.com/raw-%d", i),
			UniqueListingID: &u.ID,
		}
		if err := db.Create(&raw).Error; err != nil {
			t.Fatal(err)
		}
	}

	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var raws []models.RawListing
	if err := db.Find(&raws).Error; err != nil {
		t.Fatal(err)
	}
	for _, r := range raws {
		if !r.IsRealtor || r.RealtorID == nil {
			t.Errorf("raw listing %d not marked as realtor", r.ID)
		}
		if r.RealtorScore == nil || *r.RealtorScore != 3 {
			t.Errorf("raw listing %d realtor_score = %v, want 3", r.ID, r.RealtorScore)
		}
	}
}

func TestDetectCountsPhonePerListingOnce(t *testing.T) {
	db := newTestDB(t)
	d := NewDetector(db, config.RealtorConfig{Threshold: 3})

	// one listing repeating the phone twice plus one regular listing
	l := models.UniqueListing{PhoneNumbers: []string{"0700111222", "+996700111222"}}
	if err := db.Create(&l).Error; err != nil {
		t.Fatal(err)
	}
	seedListingsWithPhone(t, db, "0700111222", 1)

	res, err := d.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.RealtorsFound != 0 {
		t.Error("two distinct listings must not clear a threshold of three")
	}
}
