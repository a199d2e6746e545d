package dedup

import (
	"testing"

	"realty-aggregator/internal/models"
)

func TestReconcileFieldRules(t *testing.T) {
	unique := &models.UniqueListing{
		Title:        "short",
		Address:      "a very specific street address 12",
		Rooms:        intPtr(2),
		Attributes:   map[string]string{"heating": "central", "parking": "yes"},
		RealtorScore: floatPtr(3),
		Photos:       []models.UniquePhoto{{Hash: "h1"}},
	}
	raw := &models.RawListing{
		Title:        "a noticeably longer raw listing title",
		Address:      "street 12",
		Floor:        intPtr(4),
		Attributes:   map[string]string{"heating": "gas"},
		RealtorScore: floatPtr(5),
		IsVIP:        true,
		Photos: []models.Photo{
			{URL: "p1", Hash: "h1"},
			{URL: "p2", Hash: "h2"},
			{URL: "p3", Hash: ""},
		},
	}

	added := reconcile(unique, raw)

	if unique.Title != "a noticeably longer raw listing title" {
		t.Errorf("longer title should win, got %q", unique.Title)
	}
	if unique.Address != "a very specific street address 12" {
		t.Errorf("longer address should survive, got %q", unique.Address)
	}
	if unique.Rooms == nil || *unique.Rooms != 2 {
		t.Error("existing rooms must not be overwritten")
	}
	if unique.Floor == nil || *unique.Floor != 4 {
		t.Error("missing floor should be filled from incoming")
	}
	// attribute union with incoming winning on conflict
	if unique.Attributes["heating"] != "gas" || unique.Attributes["parking"] != "yes" {
		t.Errorf("attributes = %v", unique.Attributes)
	}
	if unique.RealtorScore == nil || *unique.RealtorScore != 5 {
		t.Error("higher realtor score should win")
	}
	if !unique.IsVIP {
		t.Error("VIP flag is OR-ed")
	}
	// h1 exists, empty hash skipped, only h2 is new
	if len(added) != 1 || added[0].Hash != "h2" {
		t.Errorf("added photos = %+v, want only h2", added)
	}
}

func TestReconcileScoreMonotonicity(t *testing.T) {
	unique := &models.UniqueListing{RealtorScore: floatPtr(7)}
	raw := &models.RawListing{RealtorScore: floatPtr(4)}

	reconcile(unique, raw)
	if *unique.RealtorScore != 7 {
		t.Errorf("score = %v, lower incoming score must not win", *unique.RealtorScore)
	}
}
