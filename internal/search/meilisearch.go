package search

import (
	"fmt"
	"log"

	"github.com/meilisearch/meilisearch-go"
	"gorm.io/gorm"

	"realty-aggregator/internal/models"
)

const reindexBatchSize = 500

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	return &SearchClient{
		client: client,
		index:  "listings",
	}
}

// listingDocument is the shape stored in the index. Embeddings and photo
// blobs stay out of the search engine.
type listingDocument struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Price           *float64 `json:"price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	Rooms           *int     `json:"rooms,omitempty"`
	Floor           *int     `json:"floor,omitempty"`
	AreaSqm         *float64 `json:"area_sqm,omitempty"`
	PropertyType    string   `json:"property_type,omitempty"`
	ListingType     string   `json:"listing_type,omitempty"`
	City            string   `json:"city,omitempty"`
	District        string   `json:"district,omitempty"`
	Address         string   `json:"address,omitempty"`
	IsVIP           bool     `json:"is_vip"`
	IsRealtor       bool     `json:"is_realtor"`
	DuplicatesCount int      `json:"duplicates_count"`
	PhotoURLs       []string `json:"photo_urls,omitempty"`
	CreatedAt       int64    `json:"created_at"`
}

func toDocument(l *models.UniqueListing) listingDocument {
	doc := listingDocument{
		ID:              l.ID,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		Currency:        l.Currency,
		Rooms:           l.Rooms,
		Floor:           l.Floor,
		AreaSqm:         l.AreaSqm,
		PropertyType:    l.PropertyType,
		ListingType:     l.ListingType,
		City:            l.City,
		District:        l.District,
		Address:         l.Address,
		IsVIP:           l.IsVIP,
		IsRealtor:       l.IsRealtor,
		DuplicatesCount: l.DuplicatesCount,
		CreatedAt:       l.CreatedAt.Unix(),
	}
	for _, p := range l.Photos {
		doc.PhotoURLs = append(doc.PhotoURLs, p.URL)
	}
	return doc
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	// Configure searchable attributes
	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"title",
		"description",
		"address",
		"district",
		"city",
	})
	if err != nil {
		return err
	}

	// Configure filterable attributes
	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"id",
		"price",
		"rooms",
		"floor",
		"area_sqm",
		"property_type",
		"listing_type",
		"city",
		"district",
		"is_vip",
		"is_realtor",
	})
	if err != nil {
		return err
	}

	// Configure sortable attributes
	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price",
		"area_sqm",
		"rooms",
		"duplicates_count",
		"created_at",
	})
	if err != nil {
		return err
	}

	return nil
}

// IndexListing indexes a single unique listing. AddDocuments upserts by
// primary key, so re-indexing the same listing is safe.
func (s *SearchClient) IndexListing(listing *models.UniqueListing) error {
	_, err := s.client.Index(s.index).AddDocuments([]listingDocument{toDocument(listing)})
	return err
}

// IndexListings indexes multiple unique listings
func (s *SearchClient) IndexListings(listings []models.UniqueListing) error {
	if len(listings) == 0 {
		return nil
	}
	docs := make([]listingDocument, 0, len(listings))
	for i := range listings {
		docs = append(docs, toDocument(&listings[i]))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs)
	return err
}

// DeleteListing removes a unique listing from the index
func (s *SearchClient) DeleteListing(id int64) error {
	_, err := s.client.Index(s.index).DeleteDocument(fmt.Sprintf("%d", id))
	return err
}

// Search runs a full-text query against the index.
func (s *SearchClient) Search(query string, limit, offset int64) ([]interface{}, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := s.client.Index(s.index).Search(query, &meilisearch.SearchRequest{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Hits, res.EstimatedTotalHits, nil
}

// ReindexAll walks the unique listings table in batches and pushes everything
// into the index. Returns the number of listings indexed.
func (s *SearchClient) ReindexAll(db *gorm.DB) (int, error) {
	total := 0
	lastID := int64(0)

	for {
		var batch []models.UniqueListing
		err := db.Preload("Photos").
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(reindexBatchSize).
			Find(&batch).Error
		if err != nil {
			return total, fmt.Errorf("failed to load listings for reindex: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := s.IndexListings(batch); err != nil {
			return total, fmt.Errorf("failed to index batch after id %d: %w", lastID, err)
		}
		total += len(batch)
		lastID = batch[len(batch)-1].ID
	}

	log.Printf("Search: reindexed %d listings", total)
	return total, nil
}
