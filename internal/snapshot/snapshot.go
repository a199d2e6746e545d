package snapshot

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"realty-aggregator/internal/models"
)

// Service tracks price observations on unique listings over time. Merging a
// duplicate that carries a different price than the canonical listing leaves
// a history row here.
type Service struct {
	db *gorm.DB
}

// NewService creates a new snapshot service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordPriceObservation stores a price change row when the observed price
// differs from the canonical one. Equal or doubly absent prices are not
// recorded. Runs on the caller's transaction.
func (s *Service) RecordPriceObservation(tx *gorm.DB, listingID int64, canonical, observed *float64, source string) error {
	if canonical == nil && observed == nil {
		return nil
	}
	if canonical != nil && observed != nil && *canonical == *observed {
		return nil
	}

	change := models.PriceChange{
		UniqueListingID: listingID,
		OldPrice:        canonical,
		NewPrice:        observed,
		Source:          source,
	}
	if err := tx.Create(&change).Error; err != nil {
		return fmt.Errorf("failed to record price change: %w", err)
	}
	return nil
}

// GetHistory returns the price observations for one listing, newest first.
func (s *Service) GetHistory(listingID int64, limit int) ([]models.PriceChange, error) {
	if limit <= 0 {
		limit = 50
	}
	var changes []models.PriceChange
	err := s.db.Where("unique_listing_id = ?", listingID).
		Order("detected_at DESC").
		Limit(limit).
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	return changes, nil
}

// RecentChanges returns all price observations across listings within the
// given window, newest first.
func (s *Service) RecentChanges(window time.Duration, limit int) ([]models.PriceChange, error) {
	if limit <= 0 {
		limit = 100
	}
	var changes []models.PriceChange
	err := s.db.Where("detected_at >= ?", time.Now().Add(-window)).
		Order("detected_at DESC").
		Limit(limit).
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent changes: %w", err)
	}
	return changes, nil
}
