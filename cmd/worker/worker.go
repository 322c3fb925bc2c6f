package main

import (
	"context"
	"log"
	"time"

	"knowledgebase-rag-service/internal/ai"
	"knowledgebase-rag-service/internal/config"
	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/internal/queue"
	"knowledgebase-rag-service/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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

	// Indexing pipeline
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
	collection := mongoClient.Database(cfg.DBName).Collection(cfg.ChunksCollection)
	store := services.NewMongoChunkStore(collection)
	chunker := services.NewChunker(cfg.TargetChunkSize, cfg.MinChunkSize)
	indexingService := services.NewIndexingService(chunker, embedder, store, cfg.MinContentLength)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server. Indexing is kept single-flight per worker to
	// bound concurrent load on the embedding service.
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(indexingService)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIndexDocument, processor.HandleIndexDocument)

	log.Println("Starting indexing worker...")
	log.Printf("   Redis: %s", redisOpt.Addr)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
