package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ChunkStore persists write-once chunk records and answers similarity
// queries over them.
type ChunkStore interface {
	InsertMany(ctx context.Context, chunks []models.Chunk) (int, error)
	FindByChunkID(ctx context.Context, chunkID string) (*models.Chunk, error)
	FindAll(ctx context.Context) ([]models.Chunk, error)
	DeleteByChunkID(ctx context.Context, chunkID string) (int64, error)
	DeleteWhere(ctx context.Context, filter bson.M) (int64, error)
	SimilaritySearch(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error)
}

// MongoChunkStore is a ChunkStore backed by a MongoDB collection. Similarity
// search is a brute-force cosine scan; at the corpus sizes this service
// targets that beats maintaining an approximate index.
type MongoChunkStore struct {
	collection *mongo.Collection
}

// NewMongoChunkStore wraps the given collection. The caller owns the client
// lifecycle; the store never opens or closes connections itself.
func NewMongoChunkStore(collection *mongo.Collection) *MongoChunkStore {
	return &MongoChunkStore{collection: collection}
}

// InsertMany persists a batch of chunks and returns the inserted count.
// A returned error means the caller cannot know how many documents landed.
func (s *MongoChunkStore) InsertMany(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chunk
	}

	result, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("%w: insert chunks: %v", utils.ErrPersistence, err)
	}
	return len(result.InsertedIDs), nil
}

// FindByChunkID looks up a single chunk by its opaque identifier.
func (s *MongoChunkStore) FindByChunkID(ctx context.Context, chunkID string) (*models.Chunk, error) {
	var chunk models.Chunk
	err := s.collection.FindOne(ctx, bson.M{"chunk_id": chunkID}).Decode(&chunk)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find chunk %s: %v", utils.ErrPersistence, chunkID, err)
	}
	return &chunk, nil
}

// FindAll returns every stored chunk in insertion order, vectors omitted.
func (s *MongoChunkStore) FindAll(ctx context.Context) ([]models.Chunk, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %v", utils.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	chunks := make([]models.Chunk, 0)
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("%w: decode chunks: %v", utils.ErrPersistence, err)
	}
	for i := range chunks {
		chunks[i].Vector = nil
	}
	return chunks, nil
}

// DeleteByChunkID removes one chunk and returns the deleted count.
func (s *MongoChunkStore) DeleteByChunkID(ctx context.Context, chunkID string) (int64, error) {
	result, err := s.collection.DeleteOne(ctx, bson.M{"chunk_id": chunkID})
	if err != nil {
		return 0, fmt.Errorf("%w: delete chunk %s: %v", utils.ErrPersistence, chunkID, err)
	}
	return result.DeletedCount, nil
}

// DeleteWhere bulk-deletes chunks matching the filter, e.g. all chunks not
// produced by the current embedding model.
func (s *MongoChunkStore) DeleteWhere(ctx context.Context, filter bson.M) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("%w: delete chunks: %v", utils.ErrPersistence, err)
	}
	return result.DeletedCount, nil
}

// SimilaritySearch returns the top-k stored chunks by descending cosine
// similarity to the query vector. Ties break by insertion order, earliest
// first, so results are a total order. Chunks whose vector dimension differs
// from the query are skipped.
func (s *MongoChunkStore) SimilaritySearch(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: scan chunks: %v", utils.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	var candidates []models.Chunk
	for cursor.Next(ctx) {
		var chunk models.Chunk
		if err := cursor.Decode(&chunk); err != nil {
			return nil, fmt.Errorf("%w: decode chunk: %v", utils.ErrPersistence, err)
		}
		candidates = append(candidates, chunk)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan chunks: %v", utils.ErrPersistence, err)
	}

	return rankBySimilarity(queryVector, candidates, k), nil
}

// rankBySimilarity scores candidates against the query vector and keeps the
// top k. Candidates must already be in insertion order for deterministic
// tie-breaking.
func rankBySimilarity(queryVector []float32, candidates []models.Chunk, k int) []models.ScoredChunk {
	scored := make([]models.ScoredChunk, 0, len(candidates))
	for _, chunk := range candidates {
		if len(chunk.Vector) != len(queryVector) {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(queryVector, chunk.Vector),
		})
	}

	// Stable sort keeps insertion order within equal scores
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// cosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either norm is zero.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
