package models

import "time"

// Realtor is a phone number identified as a professional agent because it
// recurs across at least a threshold number of distinct unique listings.
// Profiles are deleted again when a re-evaluation drops below the threshold,
// so realtor status is not monotonic.
type Realtor struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PhoneNumber   string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"phone_number"`
	TotalAdsCount int       `gorm:"not null;default:0" json:"total_ads_count"`
	Confidence    float64   `gorm:"not null;default:0" json:"confidence"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Realtor) TableName() string {
	return "realtors"
}
