package realtor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
)

// Result counts one detection run.
type Result struct {
	RealtorsFound   int `json:"realtors_found"`
	RealtorsRemoved int `json:"realtors_removed"`
	ListingsMarked  int `json:"listings_marked"`
	PhotoGroups     int `json:"photo_groups"`
}

// Detector identifies realtors by counting how many distinct unique listings
// share a phone number. Every run is a full recompute over the current
// corpus, so profiles appear and disappear as the data changes.
type Detector struct {
	db        *gorm.DB
	threshold int
}

func NewDetector(db *gorm.DB, cfg config.RealtorConfig) *Detector {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	return &Detector{db: db, threshold: threshold}
}

// Detect re-evaluates realtor status for the whole corpus. Phone counts are
// the primary signal; photo hashes recurring across listings only raise
// confidence on already-detected profiles.
func (d *Detector) Detect(ctx context.Context) (Result, error) {
	var result Result
	db := d.db.WithContext(ctx)

	counts, err := d.phoneCounts(db)
	if err != nil {
		return result, err
	}

	for phone, listingIDs := range counts {
		n := len(listingIDs)
		if n >= d.threshold {
			marked, err := d.promote(db, phone, n, listingIDs)
			if err != nil {
				log.Printf("Realtor: failed to promote %s: %v", phone, err)
				continue
			}
			result.RealtorsFound++
			result.ListingsMarked += marked
		}
	}

	removed, err := d.demoteBelowThreshold(db, counts)
	if err != nil {
		return result, err
	}
	result.RealtorsRemoved = removed

	groups, err := d.raiseConfidenceByPhotos(db)
	if err != nil {
		log.Printf("Realtor: photo grouping failed: %v", err)
	}
	result.PhotoGroups = groups

	return result, nil
}

// phoneCounts maps each normalized phone number to the distinct unique
// listings it appears on.
func (d *Detector) phoneCounts(db *gorm.DB) (map[string][]int64, error) {
	var listings []models.UniqueListing
	if err := db.Select("id", "phone_numbers").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to load listings for phone counting: %w", err)
	}

	counts := make(map[string][]int64)
	for _, l := range listings {
		seen := make(map[string]struct{}, len(l.PhoneNumbers))
		for _, raw := range l.PhoneNumbers {
			phone := NormalizePhone(raw)
			if phone == "" {
				continue
			}
			// 同一物件内の重複番号は1回だけ数える
			if _, ok := seen[phone]; ok {
				continue
			}
			seen[phone] = struct{}{}
			counts[phone] = append(counts[phone], l.ID)
		}
	}
	return counts, nil
}

// promote creates or updates the realtor profile for a phone number and
// stamps every listing carrying it. Confidence never decreases, neither on
// the profile nor on the listings it stamps.
func (d *Detector) promote(db *gorm.DB, phone string, count int, listingIDs []int64) (int, error) {
	var marked int
	err := db.Transaction(func(tx *gorm.DB) error {
		var realtor models.Realtor
		err := tx.Where("phone_number = ?", phone).First(&realtor).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			realtor = models.Realtor{
				PhoneNumber:   phone,
				TotalAdsCount: count,
				Confidence:    float64(count),
			}
			if err := tx.Create(&realtor).Error; err != nil {
				return fmt.Errorf("failed to create realtor: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up realtor: %w", err)
		default:
			realtor.TotalAdsCount = count
			if float64(count) > realtor.Confidence {
				realtor.Confidence = float64(count)
			}
			if err := tx.Save(&realtor).Error; err != nil {
				return fmt.Errorf("failed to update realtor: %w", err)
			}
		}

		// スコアは下がらない: max(既存, count)
		score := float64(count)
		scoreExpr := gorm.Expr(
			"CASE WHEN realtor_score IS NULL OR realtor_score < ? THEN ? ELSE realtor_score END",
			score, score)
		res := tx.Model(&models.UniqueListing{}).
			Where("id IN ?", listingIDs).
			Updates(map[string]interface{}{
				"is_realtor":    true,
				"realtor_id":    realtor.ID,
				"realtor_score": scoreExpr,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark unique listings: %w", res.Error)
		}
		marked = int(res.RowsAffected)

		// 元広告側にも反映する
		if err := tx.Model(&models.RawListing{}).
			Where("unique_listing_id IN ?", listingIDs).
			Updates(map[string]interface{}{
				"is_realtor":    true,
				"realtor_id":    realtor.ID,
				"realtor_score": scoreExpr,
			}).Error; err != nil {
			return fmt.Errorf("failed to mark raw listings: %w", err)
		}
		return nil
	})
	return marked, err
}

// demoteBelowThreshold deletes realtor profiles whose phone no longer clears
// the threshold and clears the references pointing at them.
func (d *Detector) demoteBelowThreshold(db *gorm.DB, counts map[string][]int64) (int, error) {
	var realtors []models.Realtor
	if err := db.Find(&realtors).Error; err != nil {
		return 0, fmt.Errorf("failed to load realtors: %w", err)
	}

	removed := 0
	for _, r := range realtors {
		if len(counts[r.PhoneNumber]) >= d.threshold {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			reset := map[string]interface{}{
				"is_realtor":    false,
				"realtor_id":    nil,
				"realtor_score": nil,
			}
			if err := tx.Model(&models.UniqueListing{}).
				Where("realtor_id = ?", r.ID).Updates(reset).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.RawListing{}).
				Where("realtor_id = ?", r.ID).
				Updates(map[string]interface{}{"is_realtor": false, "realtor_id": nil}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Realtor{}, r.ID).Error
		})
		if err != nil {
			log.Printf("Realtor: failed to demote %s: %v", r.PhoneNumber, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// raiseConfidenceByPhotos finds photo hashes shared across threshold-many
// unique listings and bumps confidence on the realtors owning those
// listings. This is a secondary signal; it never creates profiles.
func (d *Detector) raiseConfidenceByPhotos(db *gorm.DB) (int, error) {
	type hashGroup struct {
		Hash  string
		Count int64
	}
	var groups []hashGroup
	err := db.Model(&models.UniquePhoto{}).
		Select("hash, COUNT(DISTINCT unique_listing_id) AS count").
		Where("hash <> ''").
		Group("hash").
		Having("COUNT(DISTINCT unique_listing_id) >= ?", d.threshold).
		Scan(&groups).Error
	if err != nil {
		return 0, fmt.Errorf("failed to group photo hashes: %w", err)
	}

	for _, g := range groups {
		var realtorIDs []int64
		err := db.Model(&models.UniqueListing{}).
			Distinct("unique_listings.realtor_id").
			Joins("JOIN unique_photos ON unique_photos.unique_listing_id = unique_listings.id").
			Where("unique_photos.hash = ? AND unique_listings.realtor_id IS NOT NULL", g.Hash).
			Pluck("unique_listings.realtor_id", &realtorIDs).Error
		if err != nil {
			log.Printf("Realtor: failed to resolve photo group %s: %v", g.Hash, err)
			continue
		}
		if len(realtorIDs) == 0 {
			continue
		}
		if err := db.Model(&models.Realtor{}).
			Where("id IN ? AND confidence < ?", realtorIDs, float64(g.Count)).
			Update("confidence", float64(g.Count)).Error; err != nil {
			log.Printf("Realtor: failed to raise confidence for photo group %s: %v", g.Hash, err)
		}
	}
	return len(groups), nil
}

// NormalizePhone strips everything but digits, keeps the last 10 digits of
// longer numbers and discards anything shorter than 7 digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) < 7 {
		return ""
	}
	return digits
}
