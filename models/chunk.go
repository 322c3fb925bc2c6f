package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is the persisted unit of retrieval: a document fragment paired with
// its embedding vector. Chunks are write-once; re-indexing a source produces
// new chunks instead of mutating existing ones.
type Chunk struct {
	ID             primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	ChunkID        string             `json:"chunk_id" bson:"chunk_id"`
	Text           string             `json:"text" bson:"text"`
	Vector         []float32          `json:"vector,omitempty" bson:"vector"`
	SourceID       string             `json:"source_id" bson:"source_id"`
	Title          string             `json:"title" bson:"title"`
	Order          int                `json:"order" bson:"order"`
	IndexedAt      time.Time          `json:"indexed_at" bson:"indexed_at"`
	EmbeddingModel string             `json:"embedding_model" bson:"embedding_model"`
}

// ScoredChunk pairs a retrieved chunk with its cosine similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
