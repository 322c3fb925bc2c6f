package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"knowledgebase-rag-service/internal/config"
	"knowledgebase-rag-service/utils"

	"go.mongodb.org/mongo-driver/bson"
)

// Maintenance command for the chunk collection. Chunks embedded with a model
// other than the configured one cannot be compared against fresh query
// vectors, so after a model change they must be purged and their sources
// reindexed.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: purge <command>")
		fmt.Println("Commands:")
		fmt.Println("  count-stale  - Count chunks embedded with a different model")
		fmt.Println("  purge-stale  - Delete chunks embedded with a different model")
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	collection := client.Database(cfg.DBName).Collection(cfg.ChunksCollection)
	staleFilter := bson.M{"embedding_model": bson.M{"$ne": cfg.EmbeddingModel}}

	ctx, cancel := utils.WithTimeout(context.Background())
	defer cancel()

	switch command {
	case "count-stale":
		count, err := collection.CountDocuments(ctx, staleFilter)
		if err != nil {
			log.Fatalf("Count failed: %v", err)
		}
		fmt.Printf("%d chunks embedded with a model other than %q\n", count, cfg.EmbeddingModel)

	case "purge-stale":
		result, err := collection.DeleteMany(ctx, staleFilter)
		if err != nil {
			log.Fatalf("Purge failed: %v", err)
		}
		fmt.Printf("Deleted %d stale chunks; reindex their sources with %q\n",
			result.DeletedCount, cfg.EmbeddingModel)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}
