package database

import "realty-aggregator/internal/models"

// DuplicateStats summarizes the state of the deduplicated corpus
type DuplicateStats struct {
	TotalUniqueListings       int64   `json:"total_unique_listings"`
	TotalRawListings          int64   `json:"total_raw_listings"`
	DuplicateListings         int64   `json:"duplicate_listings"`
	BaseListings              int64   `json:"base_listings"`
	UnprocessedListings       int64   `json:"unprocessed_listings"`
	UniqueListingsWithDupes   int64   `json:"unique_listings_with_duplicates"`
	AvgDuplicatesPerUnique    float64 `json:"avg_duplicates_per_unique"`
	DeduplicationRatioPercent float64 `json:"deduplication_ratio_percent"`
}

// RealtorStats summarizes realtor detection results
type RealtorStats struct {
	TotalRealtors    int64 `json:"total_realtors"`
	RealtorUniqueAds int64 `json:"realtor_unique_listings"`
	RealtorRawAds    int64 `json:"realtor_raw_listings"`
	TotalUniqueAds   int64 `json:"total_unique_listings"`
	TotalRawAds      int64 `json:"total_raw_listings"`
}

// GetDuplicateStats returns statistics over raw and unique listings
func (gdb *GormDB) GetDuplicateStats() (*DuplicateStats, error) {
	var s DuplicateStats

	if err := gdb.db.Model(&models.UniqueListing{}).Count(&s.TotalUniqueListings).Error; err != nil {
		return nil, err
	}
	if err := gdb.db.Model(&models.RawListing{}).Count(&s.TotalRawListings).Error; err != nil {
		return nil, err
	}
	gdb.db.Model(&models.RawListing{}).Where("duplicate = ?", true).Count(&s.DuplicateListings)
	gdb.db.Model(&models.RawListing{}).Where("processed = ? AND duplicate = ?", true, false).Count(&s.BaseListings)
	gdb.db.Model(&models.RawListing{}).Where("processed = ?", false).Count(&s.UnprocessedListings)
	gdb.db.Model(&models.UniqueListing{}).Where("duplicates_count > 0").Count(&s.UniqueListingsWithDupes)

	var avg *float64
	gdb.db.Model(&models.UniqueListing{}).Select("AVG(duplicates_count)").Scan(&avg)
	if avg != nil {
		s.AvgDuplicatesPerUnique = *avg
	}
	if s.TotalRawListings > 0 {
		s.DeduplicationRatioPercent = float64(s.DuplicateListings) / float64(s.TotalRawListings) * 100
	}

	return &s, nil
}

// GetRealtorStats returns statistics over realtor detection
func (gdb *GormDB) GetRealtorStats() (*RealtorStats, error) {
	var s RealtorStats

	if err := gdb.db.Model(&models.Realtor{}).Count(&s.TotalRealtors).Error; err != nil {
		return nil, err
	}
	gdb.db.Model(&models.UniqueListing{}).Where("realtor_id IS NOT NULL").Count(&s.RealtorUniqueAds)
	gdb.db.Model(&models.RawListing{}).Where("realtor_id IS NOT NULL").Count(&s.RealtorRawAds)
	gdb.db.Model(&models.UniqueListing{}).Count(&s.TotalUniqueAds)
	gdb.db.Model(&models.RawListing{}).Count(&s.TotalRawAds)

	return &s, nil
}
