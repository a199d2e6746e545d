package photos

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gorm.io/gorm"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
)

// Hasher turns raw image bytes into a perceptual hash. Injected so the
// hashing scheme can change without touching the fetch pipeline.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Result counts one fetch run.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Fetcher downloads pending listing photos, hashes them and records the
// outcome per photo. A fixed number of downloads run concurrently.
type Fetcher struct {
	db      *gorm.DB
	client  *http.Client
	hasher  Hasher
	breaker *hostBreaker
	cfg     config.PhotosConfig
}

func NewFetcher(db *gorm.DB, hasher Hasher, cfg config.PhotosConfig) *Fetcher {
	return &Fetcher{
		db:      db,
		client:  &http.Client{Timeout: cfg.GetTimeout()},
		hasher:  hasher,
		breaker: newHostBreaker(5, 10*time.Minute),
		cfg:     cfg,
	}
}

// ProcessPending fetches every photo still in pending status. Individual
// failures mark the photo failed and never abort the run.
func (f *Fetcher) ProcessPending(ctx context.Context) (Result, error) {
	var result Result

	var pending []models.Photo
	err := f.db.WithContext(ctx).
		Where("status = ?", models.PhotoStatusPending).
		Find(&pending).Error
	if err != nil {
		return result, fmt.Errorf("failed to load pending photos: %w", err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	limit := f.cfg.ConcurrentLimit
	if limit <= 0 {
		limit = 5
	}
	sem := make(chan struct{}, limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := range pending {
		photo := &pending[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := f.processOne(ctx, photo)
			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Processed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	log.Printf("Photos: processed %d, failed %d", result.Processed, result.Failed)
	return result, nil
}

func (f *Fetcher) processOne(ctx context.Context, photo *models.Photo) error {
	data, err := f.fetch(ctx, photo.URL)
	if err != nil {
		f.markFailed(ctx, photo.ID, err)
		return err
	}

	hash, err := f.hasher.Hash(data)
	if err != nil {
		f.markFailed(ctx, photo.ID, err)
		return err
	}

	updates := map[string]interface{}{
		"hash":        hash,
		"status":      models.PhotoStatusProcessed,
		"fetch_error": "",
	}
	if err := f.db.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ?", photo.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to save photo %d: %w", photo.ID, err)
	}
	return nil
}

// fetch downloads one image with retries. Client errors that cannot succeed
// on retry (404, 403) fail immediately, as do hosts whose breaker is open.
func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	retries := f.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	host := hostOf(rawURL)
	if !f.breaker.CanProceed(host) {
		return nil, fmt.Errorf("host %s temporarily blocked", host)
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			delay := retryDelay(f.cfg.GetRetryDelay(), attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			f.breaker.RecordSuccess(host)
			return data, nil
		}
		lastErr = err
		if retryable {
			f.breaker.RecordFailure(host)
		} else {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", retries, lastErr)
}

// maxRetryDelay bounds the backoff so a long retry chain cannot hold a
// download slot for minutes.
const maxRetryDelay = 30 * time.Second

// retryDelay doubles the base delay for each attempt past the second.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("photo gone: status %d", resp.StatusCode)
	default:
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return data, false, nil
}

func (f *Fetcher) markFailed(ctx context.Context, photoID int64, cause error) {
	updates := map[string]interface{}{
		"status":      models.PhotoStatusFailed,
		"fetch_error": cause.Error(),
	}
	if err := f.db.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ?", photoID).Updates(updates).Error; err != nil {
		log.Printf("Photos: failed to mark photo %d failed: %v", photoID, err)
	}
}
