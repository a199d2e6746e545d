package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Realtor  RealtorConfig  `yaml:"realtor"`
	Queue    QueueConfig    `yaml:"queue"`
	Photos   PhotosConfig   `yaml:"photos"`
	Logging  LoggingConfig  `yaml:"logging"`
	Timezone string         `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// RedisConfig contains Redis connection settings for the job queue
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig contains orchestrator settings
type PipelineConfig struct {
	AutoMode            bool     `yaml:"auto_mode"`
	IntervalHours       int      `yaml:"interval_hours"`
	TickSeconds         int      `yaml:"tick_seconds"`
	StagePollSeconds    int      `yaml:"stage_poll_seconds"`
	StageTimeoutMinutes int      `yaml:"stage_timeout_minutes"`
	EnableScraping      bool     `yaml:"enable_scraping"`
	EnablePhotos        bool     `yaml:"enable_photo_processing"`
	EnableDeduplication bool     `yaml:"enable_duplicate_processing"`
	EnableRealtors      bool     `yaml:"enable_realtor_detection"`
	EnableIndexRefresh  bool     `yaml:"enable_index_refresh"`
	ScrapingSources     []string `yaml:"scraping_sources"`
}

// DedupConfig contains similarity scoring policy constants. The weights and
// thresholds are empirically tuned values carried over as-is; override with
// care.
type DedupConfig struct {
	BatchSize             int     `yaml:"batch_size"`
	PriceTolerance        float64 `yaml:"price_tolerance"`
	AreaTolerance         float64 `yaml:"area_tolerance"`
	LandAreaTolerance     float64 `yaml:"land_area_tolerance"`
	WeightCharacteristics float64 `yaml:"weight_characteristics"`
	WeightAddress         float64 `yaml:"weight_address"`
	WeightPhoto           float64 `yaml:"weight_photo"`
	WeightText            float64 `yaml:"weight_text"`
	ThresholdWithPhotos   float64 `yaml:"threshold_with_photos"`
	ThresholdNoPhotos     float64 `yaml:"threshold_no_photos"`

	// 属性ごとの重み。面積が最重要。0にするとその属性は比較から外れる。
	FieldWeightArea         float64 `yaml:"field_weight_area"`
	FieldWeightLandArea     float64 `yaml:"field_weight_land_area"`
	FieldWeightRooms        float64 `yaml:"field_weight_rooms"`
	FieldWeightFloor        float64 `yaml:"field_weight_floor"`
	FieldWeightTotalFloors  float64 `yaml:"field_weight_total_floors"`
	FieldWeightBuildingType float64 `yaml:"field_weight_building_type"`
	FieldWeightSeries       float64 `yaml:"field_weight_series"`
	FieldWeightListingType  float64 `yaml:"field_weight_listing_type"`
}

// RealtorConfig contains realtor detection settings
type RealtorConfig struct {
	Threshold int `yaml:"threshold"`
}

// QueueConfig contains scrape job queue and worker settings
type QueueConfig struct {
	SpiderCommand        string            `yaml:"spider_command"`
	ConfigToSpider       map[string]string `yaml:"config_to_spider"`
	StopCheckSeconds     int               `yaml:"stop_check_seconds"`
	KillGraceSeconds     int               `yaml:"kill_grace_seconds"`
	ParsingErrorPatterns []string          `yaml:"parsing_error_patterns"`
}

// PhotosConfig contains photo fetch settings
type PhotosConfig struct {
	ConcurrentLimit int `yaml:"concurrent_limit"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
	MaxRetries      int `yaml:"max_retries"`
	RetryDelayMs    int `yaml:"retry_delay_ms"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	LogRequests bool   `yaml:"log_requests"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr: "redis:6379",
		},
		Pipeline: PipelineConfig{
			AutoMode:            false,
			IntervalHours:       3,
			TickSeconds:         30,
			StagePollSeconds:    30,
			StageTimeoutMinutes: 60,
			EnableScraping:      true,
			EnablePhotos:        true,
			EnableDeduplication: true,
			EnableRealtors:      true,
			EnableIndexRefresh:  true,
			ScrapingSources:     []string{"house", "lalafo", "stroka"},
		},
		Dedup: DedupConfig{
			BatchSize:             100,
			PriceTolerance:        0.2,
			AreaTolerance:         5.0,
			LandAreaTolerance:     0.1,
			WeightCharacteristics: 0.6,
			WeightAddress:         0.2,
			WeightPhoto:           0.1,
			WeightText:            0.1,
			ThresholdWithPhotos:   0.75,
			ThresholdNoPhotos:     0.78,

			FieldWeightArea:         3.0,
			FieldWeightLandArea:     2.0,
			FieldWeightRooms:        2.0,
			FieldWeightFloor:        1.0,
			FieldWeightTotalFloors:  1.0,
			FieldWeightBuildingType: 1.0,
			FieldWeightSeries:       1.0,
			FieldWeightListingType:  1.0,
		},
		Realtor: RealtorConfig{
			Threshold: 5,
		},
		Queue: QueueConfig{
			SpiderCommand: "scrapy",
			ConfigToSpider: map[string]string{
				"house":  "generic_scraper",
				"stroka": "generic_scraper",
				"lalafo": "generic_api",
				"agency": "generic_show_more_simple",
				"an":     "generic_show_more_simple",
			},
			StopCheckSeconds: 5,
			KillGraceSeconds: 3,
			ParsingErrorPatterns: []string{
				"ERROR: Spider error processing",
				"Traceback (most recent call last)",
				"item_dropped_count",
			},
		},
		Photos: PhotosConfig{
			ConcurrentLimit: 5,
			TimeoutSeconds:  30,
			MaxRetries:      3,
			RetryDelayMs:    500,
		},
		Logging: LoggingConfig{
			Level:       "info",
			LogRequests: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	// Read file
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// GetRunInterval returns the pipeline run interval as a duration
func (c *PipelineConfig) GetRunInterval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// GetTick returns the scheduler tick cadence as a duration
func (c *PipelineConfig) GetTick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// GetStagePollInterval returns the stage status poll interval as a duration
func (c *PipelineConfig) GetStagePollInterval() time.Duration {
	return time.Duration(c.StagePollSeconds) * time.Second
}

// GetStageTimeout returns the overall per-stage wait ceiling as a duration
func (c *PipelineConfig) GetStageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMinutes) * time.Minute
}

// EnabledFor reports whether the named stage is enabled. Unknown stage names
// are disabled.
func (c *PipelineConfig) EnabledFor(stage string) bool {
	switch stage {
	case "scraping":
		return c.EnableScraping
	case "photo_processing":
		return c.EnablePhotos
	case "duplicate_processing":
		return c.EnableDeduplication
	case "realtor_detection":
		return c.EnableRealtors
	case "index_refresh":
		return c.EnableIndexRefresh
	}
	return false
}

// GetStopCheckInterval returns the worker stop poll interval as a duration
func (c *QueueConfig) GetStopCheckInterval() time.Duration {
	return time.Duration(c.StopCheckSeconds) * time.Second
}

// GetKillGrace returns the delay between terminate and kill as a duration
func (c *QueueConfig) GetKillGrace() time.Duration {
	return time.Duration(c.KillGraceSeconds) * time.Second
}

// GetTimeout returns the per-photo fetch timeout as a duration
func (c *PhotosConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the base retry delay as a duration
func (c *PhotosConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}
