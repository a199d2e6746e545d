package models

import "time"

// PriceChange records a price disagreement observed while merging a
// duplicate into its unique listing. One row per observation; the canonical
// price on the unique listing is not rewritten by observations.
type PriceChange struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UniqueListingID int64     `gorm:"not null;index" json:"unique_listing_id"`
	OldPrice        *float64  `json:"old_price,omitempty"`
	NewPrice        *float64  `json:"new_price,omitempty"`
	Source          string    `gorm:"type:varchar(50)" json:"source,omitempty"`
	DetectedAt      time.Time `gorm:"autoCreateTime;index" json:"detected_at"`
}

func (PriceChange) TableName() string {
	return "price_changes"
}
