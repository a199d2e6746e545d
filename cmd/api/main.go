package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/database"
	"realty-aggregator/internal/dedup"
	"realty-aggregator/internal/handlers"
	"realty-aggregator/internal/jobqueue"
	"realty-aggregator/internal/photos"
	"realty-aggregator/internal/pipeline"
	"realty-aggregator/internal/realtor"
	"realty-aggregator/internal/search"
)

var (
	gormDB       *database.GormDB
	searchClient *search.SearchClient
	appConfig    *config.Config
	orchestrator *pipeline.Orchestrator
	queueManager *jobqueue.Manager
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "/app/config/aggregator.yaml")
	var err error
	appConfig, err = config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}

	// Initialize database based on configuration
	dbType := appConfig.Database.Type
	if dbType == "" {
		dbType = getEnv("DB_TYPE", "postgres")
	}

	if dbType == "mysql" {
		log.Println("Using MySQL")
		mysqlCfg := appConfig.Database.MySQL

		portStr := ""
		if mysqlCfg.Port > 0 {
			portStr = fmt.Sprintf("%d", mysqlCfg.Port)
		}

		gormDB, err = database.NewGormDB(
			getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
			getEnvOrConfig(portStr, "DB_PORT", "3306"),
			getEnvOrConfig(mysqlCfg.User, "DB_USER", "aggregator_user"),
			getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "aggregator_pass"),
			getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "aggregator_db"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
	} else {
		log.Println("Using PostgreSQL")
		pgCfg := appConfig.Database.Postgres

		portStr := ""
		if pgCfg.Port > 0 {
			portStr = fmt.Sprintf("%d", pgCfg.Port)
		}

		gormDB, err = database.NewPostgresDB(
			getEnvOrConfig(pgCfg.Host, "DB_HOST", "db"),
			getEnvOrConfig(portStr, "DB_PORT", "5432"),
			getEnvOrConfig(pgCfg.User, "DB_USER", "aggregator_user"),
			getEnvOrConfig(pgCfg.Password, "DB_PASSWORD", "aggregator_pass"),
			getEnvOrConfig(pgCfg.Database, "DB_NAME", "aggregator_db"),
			pgCfg.SSLMode,
		)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
	}
	defer gormDB.Close()

	if err := gormDB.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize Meilisearch using config
	meilisearchHost := appConfig.Search.Meilisearch.Host
	if meilisearchHost == "" {
		meilisearchHost = getEnv("MEILISEARCH_HOST", "http://meilisearch:7700")
	}
	meilisearchKey := appConfig.Search.Meilisearch.APIKey
	if meilisearchKey == "" {
		meilisearchKey = getEnv("MEILISEARCH_KEY", "masterKey123")
	}

	searchClient = search.NewSearchClient(meilisearchHost, meilisearchKey)

	// Wait for Meilisearch to be ready
	time.Sleep(2 * time.Second)

	if err := searchClient.InitIndex(); err != nil {
		log.Printf("Warning: Failed to initialize search index: %v", err)
	}

	// Redis backs the scrape job queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnvOrConfig(appConfig.Redis.Addr, "REDIS_ADDR", "redis:6379"),
		Password: appConfig.Redis.Password,
		DB:       appConfig.Redis.DB,
	})
	store := jobqueue.NewRedisStore(redisClient)
	queueManager = jobqueue.NewManager(store, appConfig.Queue, appConfig.Pipeline.EnableScraping)

	// Processing services
	db := gormDB.DB()
	processor := dedup.NewProcessor(db, appConfig.Dedup, nil)
	detector := realtor.NewDetector(db, appConfig.Realtor)
	fetcher := photos.NewFetcher(db, photos.ContentHasher{}, appConfig.Photos)

	// Pipeline orchestrator with one runner per stage
	runners := map[pipeline.Stage]pipeline.Runner{
		pipeline.StageScraping:     pipeline.NewScrapingRunner(queueManager, appConfig.Pipeline.ScrapingSources),
		pipeline.StagePhotos:       pipeline.NewPhotoRunner(fetcher),
		pipeline.StageDedup:        pipeline.NewDedupRunner(processor),
		pipeline.StageRealtors:     pipeline.NewRealtorRunner(detector),
		pipeline.StageIndexRefresh: pipeline.NewIndexRefreshRunner(searchClient, db),
	}
	orchestrator = pipeline.NewOrchestrator(appConfig.Pipeline, runners, pipeline.RealClock)

	if err := orchestrator.StartScheduler(); err != nil {
		log.Printf("Warning: Failed to start pipeline scheduler: %v", err)
	}
	defer orchestrator.StopScheduler()

	// Setup Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{getEnv("CORS_ORIGIN", "http://localhost:5173")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	pipelineHandler := handlers.NewPipelineHandler(orchestrator, queueManager, appConfig.Pipeline.ScrapingSources)
	adminHandler := handlers.NewAdminHandler(gormDB, processor, detector, fetcher, searchClient)

	// Routes
	r.GET("/health", healthCheck)

	r.GET("/api/listings", adminHandler.ListListings)
	r.GET("/api/listings/:id", adminHandler.GetListing)
	r.DELETE("/api/listings/:id", adminHandler.DeleteListing)
	r.GET("/api/search", adminHandler.SearchListings)

	// Pipeline control
	r.GET("/api/pipeline/status", pipelineHandler.GetStatus)
	r.POST("/api/pipeline/start", pipelineHandler.StartPipeline)
	r.POST("/api/pipeline/stop", pipelineHandler.StopPipeline)
	r.POST("/api/pipeline/pause", pipelineHandler.PausePipeline)
	r.POST("/api/pipeline/resume", pipelineHandler.ResumePipeline)

	// Scrape queue
	r.POST("/api/scraping/jobs", pipelineHandler.EnqueueJob)
	r.POST("/api/scraping/enqueue-all", pipelineHandler.EnqueueAllJobs)
	r.GET("/api/scraping/jobs", pipelineHandler.ListJobs)
	r.GET("/api/scraping/jobs/:id", pipelineHandler.GetJob)
	r.GET("/api/scraping/jobs/:id/log", pipelineHandler.GetJobLog)
	r.POST("/api/scraping/jobs/:id/stop", pipelineHandler.StopJob)
	r.DELETE("/api/scraping/jobs/:id", pipelineHandler.RemoveJob)
	r.POST("/api/scraping/stop-all", pipelineHandler.StopAllJobs)

	// Manual processing triggers
	r.POST("/api/processing/duplicates", adminHandler.RunDeduplication)
	r.POST("/api/processing/realtors", adminHandler.RunRealtorDetection)
	r.POST("/api/processing/photos", adminHandler.RunPhotoProcessing)
	r.POST("/api/search/reindex", adminHandler.Reindex)

	// Statistics
	r.GET("/api/stats/duplicates", adminHandler.GetDuplicateStats)
	r.GET("/api/stats/realtors", adminHandler.GetRealtorStats)

	// Price history and retention
	r.GET("/api/listings/:id/history", adminHandler.GetListingHistory)
	r.GET("/api/changes/recent", adminHandler.GetRecentChanges)
	r.POST("/api/cleanup/run", adminHandler.RunCleanup)

	port := getEnv("PORT", "8084")
	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvOrConfig prefers the config value, then the environment, then the
// fallback
func getEnvOrConfig(configValue, envKey, fallback string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, fallback)
}
