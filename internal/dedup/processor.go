package dedup

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
	"realty-aggregator/internal/snapshot"
)

// Embedder produces a vector for a listing's text. Optional; when nil the
// text similarity component works off whatever embeddings ingestion stored.
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// Result counts the outcomes of one processing run.
type Result struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	NewUnique  int `json:"new_unique"`
	Errors     int `json:"errors"`
}

// Processor walks unprocessed raw listings in batches and either merges each
// one into an existing unique listing or promotes it to a new one.
type Processor struct {
	db       *gorm.DB
	scorer   *Scorer
	cfg      config.DedupConfig
	embedder Embedder
	history  *snapshot.Service
}

func NewProcessor(db *gorm.DB, cfg config.DedupConfig, embedder Embedder) *Processor {
	return &Processor{
		db:       db,
		scorer:   NewScorer(cfg),
		cfg:      cfg,
		embedder: embedder,
		history:  snapshot.NewService(db),
	}
}

// ProcessAll runs batches until no unprocessed listings remain or the context
// is cancelled.
func (p *Processor) ProcessAll(ctx context.Context) (Result, error) {
	var total Result
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		res, err := p.ProcessBatch(ctx)
		if err != nil {
			return total, err
		}
		total.Processed += res.Processed
		total.Duplicates += res.Duplicates
		total.NewUnique += res.NewUnique
		total.Errors += res.Errors

		if res.Processed == 0 {
			return total, nil
		}
	}
}

// ProcessBatch handles one batch of unprocessed listings. A failure on one
// listing is contained: the row is marked processed without a duplicate
// verdict and the batch continues.
func (p *Processor) ProcessBatch(ctx context.Context) (Result, error) {
	var result Result

	var batch []models.RawListing
	err := p.db.WithContext(ctx).
		Preload("Photos").
		Where("processed = ?", false).
		Order("id ASC").
		Limit(p.cfg.BatchSize).
		Find(&batch).Error
	if err != nil {
		return result, fmt.Errorf("failed to load unprocessed listings: %w", err)
	}

	for i := range batch {
		raw := &batch[i]
		if raw.Processed {
			continue
		}

		isDup, err := p.processOne(ctx, raw)
		if err != nil {
			log.Printf("Dedup: listing %d failed: %v", raw.ID, err)
			result.Errors++
			if markErr := p.markProcessed(ctx, raw.ID, false, nil); markErr != nil {
				log.Printf("Dedup: failed to mark listing %d processed: %v", raw.ID, markErr)
			}
			result.Processed++
			continue
		}

		result.Processed++
		if isDup {
			result.Duplicates++
		} else {
			result.NewUnique++
		}
	}

	return result, nil
}

// processOne scores the listing against its candidate pool and applies the
// best match, or creates a new unique listing when nothing clears the
// threshold. Ties on score resolve to the lowest candidate id.
func (p *Processor) processOne(ctx context.Context, raw *models.RawListing) (bool, error) {
	db := p.db.WithContext(ctx)

	candidates, err := findCandidates(db, raw, p.cfg.PriceTolerance)
	if err != nil {
		return false, err
	}

	var best *models.UniqueListing
	var bestSim Similarity
	for i := range candidates {
		sim := p.scorer.Score(raw, &candidates[i])
		if !sim.Match() {
			continue
		}
		if best == nil || sim.Overall > bestSim.Overall {
			best = &candidates[i]
			bestSim = sim
		}
	}

	if best == nil {
		if err := p.createUnique(ctx, raw); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := p.merge(ctx, raw, best.ID, bestSim); err != nil {
		return false, err
	}
	return true, nil
}

// merge links the raw listing to the unique listing and reconciles fields in
// a single transaction so a crash never leaves a link without its counter
// bump or field merge.
func (p *Processor) merge(ctx context.Context, raw *models.RawListing, uniqueID int64, sim Similarity) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unique models.UniqueListing
		if err := tx.Preload("Photos").First(&unique, uniqueID).Error; err != nil {
			return fmt.Errorf("failed to load unique listing %d: %w", uniqueID, err)
		}

		link := models.DuplicateLink{
			UniqueListingID:           unique.ID,
			RawListingID:              raw.ID,
			CharacteristicsSimilarity: sim.Characteristics,
			AddressSimilarity:         sim.Address,
			PhotoSimilarity:           sim.Photo,
			TextSimilarity:            sim.Text,
			OverallSimilarity:         sim.Overall,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("failed to create duplicate link: %w", err)
		}

		if err := p.history.RecordPriceObservation(tx, unique.ID, unique.Price, raw.Price, raw.Source); err != nil {
			log.Printf("Dedup: price observation for unique %d failed: %v", unique.ID, err)
		}

		added := reconcile(&unique, raw)
		unique.DuplicatesCount++
		p.refreshEmbedding(&unique)

		if err := tx.Omit("Photos").Save(&unique).Error; err != nil {
			return fmt.Errorf("failed to save merged listing: %w", err)
		}
		for i := range added {
			added[i].UniqueListingID = unique.ID
		}
		if len(added) > 0 {
			if err := tx.Create(&added).Error; err != nil {
				return fmt.Errorf("failed to attach merged photos: %w", err)
			}
		}

		return markProcessedTx(tx, raw.ID, true, &unique.ID)
	})
}

// createUnique promotes the raw listing into a new unique listing with its
// photos carried over.
func (p *Processor) createUnique(ctx context.Context, raw *models.RawListing) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unique := models.UniqueListing{
			Title:         raw.Title,
			Description:   raw.Description,
			Price:         raw.Price,
			Currency:      raw.Currency,
			PriceOriginal: raw.PriceOriginal,
			Rooms:         raw.Rooms,
			Floor:         raw.Floor,
			TotalFloors:   raw.TotalFloors,
			AreaSqm:       raw.AreaSqm,
			LandArea:      raw.LandArea,
			Series:        raw.Series,
			BuildingType:  raw.BuildingType,
			Condition:     raw.Condition,
			Heating:       raw.Heating,
			PropertyType:  raw.PropertyType,
			ListingType:   raw.ListingType,
			PhoneNumbers:  raw.PhoneNumbers,
			Attributes:    raw.Attributes,
			LocationID:    raw.LocationID,
			City:          raw.City,
			District:      raw.District,
			Address:       raw.Address,
			TextEmbedding: raw.TextEmbedding,
			IsVIP:         raw.IsVIP,
			IsRealtor:     raw.IsRealtor,
			RealtorScore:  raw.RealtorScore,

			ConfidenceScore: 1.0,
			BaseListingID:   raw.ID,
		}
		p.refreshEmbedding(&unique)

		if err := tx.Omit("Photos").Create(&unique).Error; err != nil {
			return fmt.Errorf("failed to create unique listing: %w", err)
		}

		if len(raw.Photos) > 0 {
			photos := make([]models.UniquePhoto, 0, len(raw.Photos))
			for _, ph := range raw.Photos {
				photos = append(photos, models.UniquePhoto{
					UniqueListingID: unique.ID,
					URL:             ph.URL,
					Hash:            ph.Hash,
					Embedding:       ph.Embedding,
				})
			}
			if err := tx.Create(&photos).Error; err != nil {
				return fmt.Errorf("failed to copy photos: %w", err)
			}
		}

		return markProcessedTx(tx, raw.ID, false, &unique.ID)
	})
}

// refreshEmbedding recomputes the unique listing's text vector after its
// title or description may have changed.
func (p *Processor) refreshEmbedding(unique *models.UniqueListing) {
	if p.embedder == nil {
		return
	}
	vec, err := p.embedder.Embed(unique.Title + " " + unique.Description)
	if err != nil {
		log.Printf("Dedup: embedding refresh for unique %d failed: %v", unique.ID, err)
		return
	}
	unique.TextEmbedding = vec
}

func (p *Processor) markProcessed(ctx context.Context, rawID int64, duplicate bool, uniqueID *int64) error {
	return markProcessedTx(p.db.WithContext(ctx), rawID, duplicate, uniqueID)
}

func markProcessedTx(tx *gorm.DB, rawID int64, duplicate bool, uniqueID *int64) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":         true,
		"duplicate":         duplicate,
		"unique_listing_id": uniqueID,
		"processed_at":      &now,
	}
	if err := tx.Model(&models.RawListing{}).Where("id = ?", rawID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark listing %d processed: %w", rawID, err)
	}
	return nil
}
