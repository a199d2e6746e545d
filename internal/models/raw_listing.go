package models

import "time"

// RawListing is one as-scraped posting from one source. Rows are created by
// the ingestion side and only the deduplication stage mutates them
// (processed/duplicate flags and the unique-listing reference).
type RawListing struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Source    string `gorm:"type:varchar(50);not null;index" json:"source"`
	SourceURL string `gorm:"type:varchar(500);not null;uniqueIndex" json:"source_url"`

	Title       string `gorm:"type:text" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	Price         *float64 `gorm:"index" json:"price,omitempty"`
	Currency      string   `gorm:"type:varchar(10)" json:"currency,omitempty"`
	PriceOriginal string   `gorm:"type:varchar(100)" json:"price_original,omitempty"`

	// 構造化属性
	Rooms        *int     `gorm:"index" json:"rooms,omitempty"`
	Floor        *int     `json:"floor,omitempty"`
	TotalFloors  *int     `json:"total_floors,omitempty"`
	AreaSqm      *float64 `gorm:"type:decimal(10,2)" json:"area_sqm,omitempty"`
	LandArea     *float64 `gorm:"type:decimal(10,2)" json:"land_area,omitempty"`
	Series       string   `gorm:"type:varchar(100)" json:"series,omitempty"`
	BuildingType string   `gorm:"type:varchar(100)" json:"building_type,omitempty"`
	Condition    string   `gorm:"type:varchar(100)" json:"condition,omitempty"`
	Heating      string   `gorm:"type:varchar(100)" json:"heating,omitempty"`
	PropertyType string   `gorm:"type:varchar(50);index" json:"property_type,omitempty"`
	ListingType  string   `gorm:"type:varchar(50)" json:"listing_type,omitempty"`

	PhoneNumbers []string          `gorm:"serializer:json;type:text" json:"phone_numbers,omitempty"`
	Attributes   map[string]string `gorm:"serializer:json;type:text" json:"attributes,omitempty"`

	TextEmbedding []float64 `gorm:"serializer:json;type:text" json:"text_embedding,omitempty"`

	LocationID *int64 `gorm:"index" json:"location_id,omitempty"`
	City       string `gorm:"type:varchar(100)" json:"city,omitempty"`
	District   string `gorm:"type:varchar(100)" json:"district,omitempty"`
	Address    string `gorm:"type:text" json:"address,omitempty"`

	Photos []Photo `gorm:"foreignKey:RawListingID" json:"photos,omitempty"`

	IsVIP        bool     `json:"is_vip"`
	IsRealtor    bool     `json:"is_realtor"`
	RealtorScore *float64 `json:"realtor_score,omitempty"`
	RealtorID    *int64   `gorm:"index" json:"realtor_id,omitempty"`

	// デデュープ結果
	Processed       bool       `gorm:"not null;default:false;index" json:"processed"`
	Duplicate       bool       `gorm:"not null;default:false;index" json:"duplicate"`
	UniqueListingID *int64     `gorm:"index" json:"unique_listing_id,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_raw_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName はテーブル名を明示的に指定
func (RawListing) TableName() string {
	return "raw_listings"
}

// HasLocation reports whether any address component is present.
func (l *RawListing) HasLocation() bool {
	return l.LocationID != nil || l.City != "" || l.District != "" || l.Address != ""
}

// PhotoHashes returns the non-empty perceptual hashes of the listing's photos.
func (l *RawListing) PhotoHashes() []string {
	hashes := make([]string, 0, len(l.Photos))
	for _, p := range l.Photos {
		if p.Hash != "" {
			hashes = append(hashes, p.Hash)
		}
	}
	return hashes
}
