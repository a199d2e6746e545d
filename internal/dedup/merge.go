package dedup

import (
	"realty-aggregator/internal/models"
)

// reconcile folds a confirmed duplicate into its unique listing. String
// fields keep the longer value, missing structured fields are filled from the
// incoming side, set-like fields are unioned. Returns the photos that are new
// to the unique listing by hash.
func reconcile(unique *models.UniqueListing, raw *models.RawListing) []models.UniquePhoto {
	unique.Title = longer(unique.Title, raw.Title)
	unique.Description = longer(unique.Description, raw.Description)
	unique.Address = longer(unique.Address, raw.Address)

	if unique.Price == nil {
		unique.Price = raw.Price
	}
	if unique.Currency == "" {
		unique.Currency = raw.Currency
	}
	if unique.Rooms == nil {
		unique.Rooms = raw.Rooms
	}
	if unique.Floor == nil {
		unique.Floor = raw.Floor
	}
	if unique.TotalFloors == nil {
		unique.TotalFloors = raw.TotalFloors
	}
	if unique.AreaSqm == nil {
		unique.AreaSqm = raw.AreaSqm
	}
	if unique.LandArea == nil {
		unique.LandArea = raw.LandArea
	}
	if unique.Series == "" {
		unique.Series = raw.Series
	}
	if unique.BuildingType == "" {
		unique.BuildingType = raw.BuildingType
	}
	if unique.Condition == "" {
		unique.Condition = raw.Condition
	}
	if unique.Heating == "" {
		unique.Heating = raw.Heating
	}
	if unique.PropertyType == "" {
		unique.PropertyType = raw.PropertyType
	}
	if unique.ListingType == "" {
		unique.ListingType = raw.ListingType
	}
	if unique.LocationID == nil {
		unique.LocationID = raw.LocationID
	}
	if unique.City == "" {
		unique.City = raw.City
	}
	if unique.District == "" {
		unique.District = raw.District
	}

	unique.PhoneNumbers = unionStrings(unique.PhoneNumbers, raw.PhoneNumbers)
	unique.Attributes = unionAttributes(unique.Attributes, raw.Attributes)

	unique.IsVIP = unique.IsVIP || raw.IsVIP
	unique.IsRealtor = unique.IsRealtor || raw.IsRealtor
	if raw.RealtorScore != nil {
		if unique.RealtorScore == nil || *raw.RealtorScore > *unique.RealtorScore {
			unique.RealtorScore = raw.RealtorScore
		}
	}

	return newPhotos(unique, raw)
}

func longer(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}

func unionStrings(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := existing
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, s := range incoming {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func unionAttributes(existing, incoming map[string]string) map[string]string {
	if len(incoming) == 0 {
		return existing
	}
	if existing == nil {
		existing = make(map[string]string, len(incoming))
	}
	// 同名キーは新しい側を優先
	for k, v := range incoming {
		existing[k] = v
	}
	return existing
}

// newPhotos returns the raw listing's photos whose hashes the unique listing
// does not already carry. Photos without a hash are skipped since they cannot
// be matched against later duplicates.
func newPhotos(unique *models.UniqueListing, raw *models.RawListing) []models.UniquePhoto {
	known := make(map[string]struct{}, len(unique.Photos))
	for _, p := range unique.Photos {
		if p.Hash != "" {
			known[p.Hash] = struct{}{}
		}
	}

	var added []models.UniquePhoto
	for _, p := range raw.Photos {
		if p.Hash == "" {
			continue
		}
		if _, ok := known[p.Hash]; ok {
			continue
		}
		known[p.Hash] = struct{}{}
		added = append(added, models.UniquePhoto{
			UniqueListingID: unique.ID,
			URL:             p.URL,
			Hash:            p.Hash,
			Embedding:       p.Embedding,
		})
	}
	return added
}
