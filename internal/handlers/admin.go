package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"realty-aggregator/internal/cleanup"
	"realty-aggregator/internal/database"
	"realty-aggregator/internal/dedup"
	"realty-aggregator/internal/models"
	"realty-aggregator/internal/photos"
	"realty-aggregator/internal/realtor"
	"realty-aggregator/internal/search"
	"realty-aggregator/internal/snapshot"
)

// AdminHandler exposes manual processing triggers, statistics and listing
// reads.
type AdminHandler struct {
	gdb             *database.GormDB
	processor       *dedup.Processor
	detector        *realtor.Detector
	fetcher         *photos.Fetcher
	searchClient    *search.SearchClient
	snapshotService *snapshot.Service
	cleanupService  *cleanup.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(gdb *database.GormDB, processor *dedup.Processor, detector *realtor.Detector, fetcher *photos.Fetcher, searchClient *search.SearchClient) *AdminHandler {
	return &AdminHandler{
		gdb:             gdb,
		processor:       processor,
		detector:        detector,
		fetcher:         fetcher,
		searchClient:    searchClient,
		snapshotService: snapshot.NewService(gdb.DB()),
		cleanupService:  cleanup.NewService(gdb.DB()),
	}
}

// RunDeduplication processes all unprocessed raw listings synchronously
func (h *AdminHandler) RunDeduplication(c *gin.Context) {
	result, err := h.processor.ProcessAll(c.Request.Context())
	if err != nil {
		log.Printf("Admin: deduplication run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunRealtorDetection re-evaluates realtor status over the full corpus
func (h *AdminHandler) RunRealtorDetection(c *gin.Context) {
	result, err := h.detector.Detect(c.Request.Context())
	if err != nil {
		log.Printf("Admin: realtor detection failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunPhotoProcessing fetches and hashes all pending photos
func (h *AdminHandler) RunPhotoProcessing(c *gin.Context) {
	result, err := h.fetcher.ProcessPending(c.Request.Context())
	if err != nil {
		log.Printf("Admin: photo processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reindex rebuilds the search index from the unique listings table
func (h *AdminHandler) Reindex(c *gin.Context) {
	indexed, err := h.searchClient.ReindexAll(h.gdb.DB().WithContext(c.Request.Context()))
	if err != nil {
		log.Printf("Admin: reindex failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexed": indexed})
}

// GetDuplicateStats returns deduplication statistics
func (h *AdminHandler) GetDuplicateStats(c *gin.Context) {
	stats, err := h.gdb.GetDuplicateStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRealtorStats returns realtor detection statistics
func (h *AdminHandler) GetRealtorStats(c *gin.Context) {
	stats, err := h.gdb.GetRealtorStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListListings returns a page of unique listings, newest first
func (h *AdminHandler) ListListings(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 20)
	offset := parseIntQuery(c, "offset", 0)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := h.gdb.DB().Model(&models.UniqueListing{}).Preload("Photos")
	if pt := c.Query("property_type"); pt != "" {
		q = q.Where("property_type = ?", pt)
	}
	if city := c.Query("city"); city != "" {
		q = q.Where("city = ?", city)
	}
	if c.Query("realtor") == "false" {
		q = q.Where("is_realtor = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var listings []models.UniqueListing
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&listings).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetListing returns one unique listing with its photos and duplicates
func (h *AdminHandler) GetListing(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	var listing models.UniqueListing
	err = h.gdb.DB().Preload("Photos").First(&listing, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var duplicates []models.DuplicateLink
	h.gdb.DB().Where("unique_listing_id = ?", id).Find(&duplicates)

	c.JSON(http.StatusOK, gin.H{
		"listing":    listing,
		"duplicates": duplicates,
	})
}

// DeleteListing removes a unique listing, unlinks its raw listings and drops
// it from the search index
func (h *AdminHandler) DeleteListing(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	err = h.gdb.DB().Transaction(func(tx *gorm.DB) error {
		var listing models.UniqueListing
		if err := tx.First(&listing, id).Error; err != nil {
			return err
		}
		if err := tx.Where("unique_listing_id = ?", id).Delete(&models.DuplicateLink{}).Error; err != nil {
			return err
		}
		if err := tx.Where("unique_listing_id = ?", id).Delete(&models.UniquePhoto{}).Error; err != nil {
			return err
		}
		if err := tx.Where("unique_listing_id = ?", id).Delete(&models.PriceChange{}).Error; err != nil {
			return err
		}
		// 元広告は再処理対象に戻す
		if err := tx.Model(&models.RawListing{}).
			Where("unique_listing_id = ?", id).
			Updates(map[string]interface{}{
				"unique_listing_id": nil,
				"processed":         false,
				"duplicate":         false,
				"processed_at":      nil,
			}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.UniqueListing{}, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.searchClient.DeleteListing(id); err != nil {
		log.Printf("Admin: failed to drop listing %d from search index: %v", id, err)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// GetListingHistory returns the price observations for one listing
func (h *AdminHandler) GetListingHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	changes, err := h.snapshotService.GetHistory(id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// GetRecentChanges returns price observations across all listings
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	days := parseIntQuery(c, "days", 7)
	limit := parseIntQuery(c, "limit", 100)

	changes, err := h.snapshotService.RecentChanges(time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// RunCleanup deletes expired processing residue
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	cfg := cleanup.DefaultConfig()
	cfg.DryRun = c.Query("dry_run") == "true"
	if days := parseIntQuery(c, "retention_days", 0); days > 0 {
		cfg.DuplicateRetentionDays = days
	}

	result, err := h.cleanupService.Run(cfg)
	if err != nil {
		log.Printf("Admin: cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SearchListings runs a full-text query against the search index
func (h *AdminHandler) SearchListings(c *gin.Context) {
	limit := int64(parseIntQuery(c, "limit", 20))
	offset := int64(parseIntQuery(c, "offset", 0))

	hits, total, err := h.searchClient.Search(c.Query("q"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hits":  hits,
		"total": total,
	})
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
