package models

import "time"

// DuplicateLink records one raw listing having been matched to one unique
// listing, with the sub-scores that justified the match. Immutable once
// created; at most one per raw listing.
type DuplicateLink struct {
	ID              int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UniqueListingID int64 `gorm:"not null;index" json:"unique_listing_id"`
	RawListingID    int64 `gorm:"not null;uniqueIndex" json:"raw_listing_id"`

	CharacteristicsSimilarity float64 `json:"characteristics_similarity"`
	AddressSimilarity         float64 `json:"address_similarity"`
	PhotoSimilarity           float64 `json:"photo_similarity"`
	TextSimilarity            float64 `json:"text_similarity"`
	OverallSimilarity         float64 `json:"overall_similarity"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DuplicateLink) TableName() string {
	return "duplicate_links"
}
