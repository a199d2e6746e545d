package dedup

import (
	"fmt"

	"gorm.io/gorm"

	"realty-aggregator/internal/models"
)

// findCandidates narrows the unique listing pool to rows cheap enough to
// score pairwise. Each filter only applies when the raw listing carries the
// attribute, so sparse listings still get scored against the full pool.
func findCandidates(db *gorm.DB, raw *models.RawListing, priceTolerance float64) ([]models.UniqueListing, error) {
	q := db.Model(&models.UniqueListing{}).Preload("Photos")

	if raw.LocationID != nil {
		q = q.Where("location_id = ?", *raw.LocationID)
	}
	if raw.Price != nil && *raw.Price > 0 {
		lo := *raw.Price * (1 - priceTolerance)
		hi := *raw.Price * (1 + priceTolerance)
		q = q.Where("price BETWEEN ? AND ?", lo, hi)
	}
	if raw.Rooms != nil {
		q = q.Where("rooms = ?", *raw.Rooms)
	}

	var candidates []models.UniqueListing
	if err := q.Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load dedup candidates: %w", err)
	}
	return candidates, nil
}
