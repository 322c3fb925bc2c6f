package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knowledgebase-rag-service/internal/ai"
	"knowledgebase-rag-service/internal/config"
	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/internal/telemetry"
	"knowledgebase-rag-service/middleware"
	"knowledgebase-rag-service/routes"
	"knowledgebase-rag-service/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing is best-effort: a missing collector must not block startup
	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := telemetry.InitTracer("knowledgebase-rag-service", endpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Model clients
	embedder := ai.NewEmbedder(ai.EmbedderConfig{
		BaseURL:        cfg.OllamaBaseURL,
		Model:          cfg.EmbeddingModel,
		Dimensions:     cfg.VectorDimensions,
		Timeout:        cfg.EmbedTimeout,
		MaxRetries:     cfg.EmbedMaxRetries,
		RetryBaseDelay: cfg.EmbedRetryBaseDelay,
		DegradedMode:   cfg.DegradedModeEnabled,
		RateLimit:      cfg.EmbedRateLimit,
		Concurrency:    cfg.EmbedConcurrency,
		PacingEvery:    cfg.PacingEvery,
		PacingDelay:    cfg.PacingDelay,
	})
	generator := ai.NewGenerator(ai.GeneratorConfig{
		BaseURL:     cfg.OllamaBaseURL,
		Model:       cfg.GenerationModel,
		Timeout:     cfg.GenerateTimeout,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})

	// Pipeline services
	collection := mongoClient.Database(cfg.DBName).Collection(cfg.ChunksCollection)
	store := services.NewMongoChunkStore(collection)
	chunker := services.NewChunker(cfg.TargetChunkSize, cfg.MinChunkSize)
	indexingService := services.NewIndexingService(chunker, embedder, store, cfg.MinContentLength)
	ragService := services.NewRAGService(embedder, generator, store, cfg.TopK)
	statusService := services.NewStatusService(mongoClient, embedder, generator,
		cfg.ProbeTimeout, cfg.LiveEmbedProbe)

	// Redis backs the async queue, rate limiting and the answer cache. The
	// service still runs without it, minus those features.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and answer cache disabled", "error", err)
		rdb = nil
	}
	if rdb != nil && cfg.QueryCacheTTL > 0 {
		ragService = ragService.WithCache(services.NewRedisAnswerCache(rdb, cfg.QueryCacheTTL))
	}

	// Async indexing queue client
	var queueClient *asynq.Client
	if rdb != nil {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupRAGRoutes(router, indexingService, ragService, statusService, queueClient, metrics)
	routes.SetupChunkRoutes(router, indexingService, store)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
