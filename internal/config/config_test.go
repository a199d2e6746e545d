package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dedup.ThresholdWithPhotos != 0.75 {
		t.Errorf("threshold with photos = %v, want 0.75", cfg.Dedup.ThresholdWithPhotos)
	}
	if cfg.Dedup.ThresholdNoPhotos != 0.78 {
		t.Errorf("threshold without photos = %v, want 0.78", cfg.Dedup.ThresholdNoPhotos)
	}
	if got := cfg.Dedup.WeightCharacteristics + cfg.Dedup.WeightAddress + cfg.Dedup.WeightPhoto + cfg.Dedup.WeightText; got != 1.0 {
		t.Errorf("weights sum to %v, want 1.0", got)
	}
	if cfg.Dedup.FieldWeightArea <= cfg.Dedup.FieldWeightSeries {
		t.Errorf("area weight %v should exceed minor field weight %v",
			cfg.Dedup.FieldWeightArea, cfg.Dedup.FieldWeightSeries)
	}
	if cfg.Realtor.Threshold != 5 {
		t.Errorf("realtor threshold = %d, want 5", cfg.Realtor.Threshold)
	}
	if cfg.Pipeline.GetRunInterval() != 3*time.Hour {
		t.Errorf("run interval = %v, want 3h", cfg.Pipeline.GetRunInterval())
	}
	if cfg.Pipeline.GetStageTimeout() != time.Hour {
		t.Errorf("stage timeout = %v, want 1h", cfg.Pipeline.GetStageTimeout())
	}
	if cfg.Queue.ConfigToSpider["house"] != "generic_scraper" {
		t.Errorf("house spider = %q", cfg.Queue.ConfigToSpider["house"])
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path.yaml")
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Dedup.BatchSize != 100 {
		t.Errorf("batch size = %d, want default 100", cfg.Dedup.BatchSize)
	}
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pipeline:
  auto_mode: true
  interval_hours: 6
dedup:
  batch_size: 250
redis:
  addr: localhost:6380
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Pipeline.AutoMode {
		t.Error("auto_mode should be overridden to true")
	}
	if cfg.Pipeline.GetRunInterval() != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", cfg.Pipeline.GetRunInterval())
	}
	if cfg.Dedup.BatchSize != 250 {
		t.Errorf("batch size = %d, want 250", cfg.Dedup.BatchSize)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Errorf("redis addr = %s", cfg.Redis.Addr)
	}
	// untouched sections keep defaults
	if cfg.Dedup.ThresholdWithPhotos != 0.75 {
		t.Errorf("threshold = %v, defaults should survive partial override", cfg.Dedup.ThresholdWithPhotos)
	}
	if cfg.Queue.SpiderCommand != "scrapy" {
		t.Errorf("spider command = %s, want default scrapy", cfg.Queue.SpiderCommand)
	}
}

func TestEnabledFor(t *testing.T) {
	cfg := DefaultConfig().Pipeline
	cfg.EnablePhotos = false

	if !cfg.EnabledFor("scraping") {
		t.Error("scraping should be enabled by default")
	}
	if cfg.EnabledFor("photo_processing") {
		t.Error("photo_processing was disabled")
	}
	if cfg.EnabledFor("nosuch") {
		t.Error("unknown stages are disabled")
	}
}
