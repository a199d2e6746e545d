package models

import "time"

// UniqueListing is the canonical, merged representation of one physical
// property across all its duplicate postings. Created by cluster merge on
// "no match" and reconciled on every subsequent match; the realtor detector
// only writes the realtor reference and score fields.
type UniqueListing struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Title       string `gorm:"type:text" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	Price         *float64 `gorm:"index" json:"price,omitempty"`
	Currency      string   `gorm:"type:varchar(10)" json:"currency,omitempty"`
	PriceOriginal string   `gorm:"type:varchar(100)" json:"price_original,omitempty"`

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

	LocationID *int64 `gorm:"index" json:"location_id,omitempty"`
	City       string `gorm:"type:varchar(100)" json:"city,omitempty"`
	District   string `gorm:"type:varchar(100)" json:"district,omitempty"`
	Address    string `gorm:"type:text" json:"address,omitempty"`

	Photos        []UniquePhoto `gorm:"foreignKey:UniqueListingID" json:"photos,omitempty"`
	TextEmbedding []float64     `gorm:"serializer:json;type:text" json:"text_embedding,omitempty"`

	IsVIP        bool     `json:"is_vip"`
	IsRealtor    bool     `json:"is_realtor"`
	RealtorScore *float64 `json:"realtor_score,omitempty"`
	RealtorID    *int64   `gorm:"index" json:"realtor_id,omitempty"`

	DuplicatesCount int     `gorm:"not null;default:0" json:"duplicates_count"`
	ConfidenceScore float64 `gorm:"not null;default:1" json:"confidence_score"`
	BaseListingID   int64   `gorm:"index" json:"base_listing_id"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_unique_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UniqueListing) TableName() string {
	return "unique_listings"
}

// HasLocation reports whether any address component is present.
func (u *UniqueListing) HasLocation() bool {
	return u.LocationID != nil || u.City != "" || u.District != "" || u.Address != ""
}

// PhotoHashes returns the non-empty perceptual hashes of the listing's photos.
func (u *UniqueListing) PhotoHashes() []string {
	hashes := make([]string, 0, len(u.Photos))
	for _, p := range u.Photos {
		if p.Hash != "" {
			hashes = append(hashes, p.Hash)
		}
	}
	return hashes
}
