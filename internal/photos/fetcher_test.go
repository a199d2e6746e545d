package photos

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.RawListing{}, &models.Photo{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func testPhotosConfig() config.PhotosConfig {
	cfg := config.DefaultConfig().Photos
	cfg.RetryDelayMs = 1
	return cfg
}

func TestProcessPendingHashesPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	db := newTestDB(t)
	if err := db.Create(&models.Photo{URL: srv.URL + "/a.jpg", Status: models.PhotoStatusPending}).Error; err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(db, ContentHasher{}, testPhotosConfig())
	res, err := f.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	var photo models.Photo
	if err := db.First(&photo).Error; err != nil {
		t.Fatal(err)
	}
	if photo.Status != models.PhotoStatusProcessed {
		t.Errorf("status = %s, want processed", photo.Status)
	}
	if photo.Hash == "" {
		t.Error("hash should be set")
	}

	// same bytes, same hash
	h1, _ := ContentHasher{}.Hash([]byte("image-bytes"))
	if photo.Hash != h1 {
		t.Errorf("hash mismatch: %s vs %s", photo.Hash, h1)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	db := newTestDB(t)
	if err := db.Create(&models.Photo{URL: srv.URL + "/gone.jpg", Status: models.PhotoStatusPending}).Error; err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(db, ContentHasher{}, testPhotosConfig())
	res, err := f.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("result = %+v, want one failure", res)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("404 fetched %d times, must not retry", got)
	}

	var photo models.Photo
	if err := db.First(&photo).Error; err != nil {
		t.Fatal(err)
	}
	if photo.Status != models.PhotoStatusFailed {
		t.Errorf("status = %s, want failed", photo.Status)
	}
	if photo.FetchError == "" {
		t.Error("fetch_error should record the cause")
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer srv.Close()

	db := newTestDB(t)
	if err := db.Create(&models.Photo{URL: srv.URL + "/flaky.jpg", Status: models.PhotoStatusPending}).Error; err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(db, ContentHasher{}, testPhotosConfig())
	res, err := f.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Fatalf("result = %+v, want success on third attempt", res)
	}
}

func TestRetryDelayDoublesWithCap(t *testing.T) {
	base := 500 * time.Millisecond
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{4, 2 * time.Second},
		{5, 4 * time.Second},
	}
	for _, c := range cases {
		if got := retryDelay(base, c.attempt); got != c.want {
			t.Errorf("retryDelay(%v, %d) = %v, want %v", base, c.attempt, got, c.want)
		}
	}

	// long chains hit the cap instead of growing unbounded
	if got := retryDelay(10*time.Second, 4); got != maxRetryDelay {
		t.Errorf("capped delay = %v, want %v", got, maxRetryDelay)
	}
	if got := retryDelay(time.Second, 60); got != maxRetryDelay {
		t.Errorf("deep retry delay = %v, want %v", got, maxRetryDelay)
	}
}

func TestHostBreakerOpensAndResets(t *testing.T) {
	b := newHostBreaker(2, 20*time.Millisecond)

	if !b.CanProceed("img.example.com") {
		t.Fatal("fresh host must be allowed")
	}
	b.RecordFailure("img.example.com")
	if !b.CanProceed("img.example.com") {
		t.Fatal("one failure must not open the breaker")
	}
	b.RecordFailure("img.example.com")
	if b.CanProceed("img.example.com") {
		t.Fatal("breaker should be open after two consecutive failures")
	}
	// other hosts are unaffected
	if !b.CanProceed("other.example.com") {
		t.Fatal("breaker state must be per host")
	}

	time.Sleep(25 * time.Millisecond)
	if !b.CanProceed("img.example.com") {
		t.Fatal("breaker should half-open after the reset timeout")
	}

	b.RecordFailure("img.example.com")
	b.RecordSuccess("img.example.com")
	b.RecordFailure("img.example.com")
	if !b.CanProceed("img.example.com") {
		t.Fatal("success must reset the failure streak")
	}
}
