package models

import "time"

// Photo belongs to exactly one RawListing. Rows arrive in pending status
// from ingestion; the photo stage downloads each image and fills the hash,
// or records the fetch failure.
type Photo struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RawListingID int64     `gorm:"not null;index" json:"raw_listing_id"`
	URL          string    `gorm:"type:varchar(500);not null" json:"url"`
	Hash         string    `gorm:"type:varchar(64);index" json:"hash,omitempty"`
	Embedding    []float64 `gorm:"serializer:json;type:text" json:"embedding,omitempty"`
	Status       string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FetchError   string    `gorm:"type:text" json:"fetch_error,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Photo) TableName() string {
	return "photos"
}

// Photo processing status
const (
	PhotoStatusPending   = "pending"
	PhotoStatusProcessed = "processed"
	PhotoStatusFailed    = "failed"
)

// UniquePhoto belongs to exactly one UniqueListing. Rows are copied from
// raw-listing photos during cluster merge; a hash is appended at most once
// per unique listing.
type UniquePhoto struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UniqueListingID int64     `gorm:"not null;index" json:"unique_listing_id"`
	URL             string    `gorm:"type:varchar(500);not null" json:"url"`
	Hash            string    `gorm:"type:varchar(64);index" json:"hash,omitempty"`
	Embedding       []float64 `gorm:"serializer:json;type:text" json:"embedding,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UniquePhoto) TableName() string {
	return "unique_photos"
}
