package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/utils"

	"go.mongodb.org/mongo-driver/bson"
)

// EmbeddingClient is the contract the pipeline expects from the embedding
// boundary. Satisfied by *ai.Embedder.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ZeroVector() []float32
	Dimensions() int
	ModelName() string
	Ping(ctx context.Context) error
}

// IndexingService owns the write path into the chunk store: it loads and
// cleans a document, chunks it, embeds each chunk, and persists the batch.
type IndexingService struct {
	chunker    *Chunker
	embedder   EmbeddingClient
	store      ChunkStore
	minContent int
}

// NewIndexingService wires the indexing pipeline.
func NewIndexingService(chunker *Chunker, embedder EmbeddingClient, store ChunkStore, minContent int) *IndexingService {
	if minContent <= 0 {
		minContent = 50
	}
	return &IndexingService{
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		minContent: minContent,
	}
}

// IndexDocument cleans, chunks, embeds and persists one document. Embedding
// goes through the client's batch path, which paces sequential calls and
// bounds concurrent ones. If any chunk fails to embed (and degraded mode is
// off) nothing is persisted; the insert happens only after every chunk has a
// vector.
func (s *IndexingService) IndexDocument(ctx context.Context, rawText string, meta SourceMeta) (models.IndexingResult, error) {
	cleaned := CleanContent(rawText)
	if len(cleaned) < s.minContent {
		return failed(fmt.Errorf("%w: cleaned content is %d characters, need at least %d",
			utils.ErrContentTooShort, len(cleaned), s.minContent))
	}

	chunks := s.chunker.Chunk(cleaned, meta)
	if len(chunks) == 0 {
		return failed(fmt.Errorf("%w: source %q", utils.ErrNoChunksProduced, meta.SourceID))
	}

	logger.Info("indexing document", "source_id", meta.SourceID, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return failed(fmt.Errorf("embed chunks of source %q: %w", meta.SourceID, err))
	}

	indexedAt := time.Now().UTC()
	for i := range chunks {
		chunks[i].Vector = vectors[i]
		chunks[i].IndexedAt = indexedAt
		chunks[i].EmbeddingModel = s.embedder.ModelName()
	}

	count, err := s.store.InsertMany(ctx, chunks)
	if err != nil {
		return failed(fmt.Errorf("persist chunks for source %q: %w", meta.SourceID, err))
	}

	logger.Info("document indexed", "source_id", meta.SourceID, "chunks", count)
	return models.IndexingResult{
		Success:    true,
		ChunkCount: count,
		Message:    fmt.Sprintf("Successfully indexed %d chunks", count),
	}, nil
}

// IndexFile reads a document from disk and indexes it, deriving the source id
// and title from the filename.
func (s *IndexingService) IndexFile(ctx context.Context, path string) (models.IndexingResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return failed(fmt.Errorf("%w: read file %q: %v", utils.ErrValidation, path, err))
	}

	fileName := filepath.Base(path)
	slug := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	return s.IndexDocument(ctx, string(content), SourceMeta{
		SourceID: slug,
		Title:    titleFromSlug(slug),
	})
}

// PurgeStaleChunks deletes every chunk not produced by the currently
// configured embedding model; mixed-model vectors are not comparable.
func (s *IndexingService) PurgeStaleChunks(ctx context.Context) (int64, error) {
	return s.store.DeleteWhere(ctx, bson.M{
		"embedding_model": bson.M{"$ne": s.embedder.ModelName()},
	})
}

// AddChunk embeds and persists a single caller-supplied fragment.
func (s *IndexingService) AddChunk(ctx context.Context, text string, meta SourceMeta) (*models.Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: chunk text must not be empty", utils.ErrValidation)
	}

	chunks := s.chunker.Chunk(trimmed, meta)
	if len(chunks) != 1 {
		return nil, fmt.Errorf("%w: text must fit a single chunk, got %d", utils.ErrValidation, len(chunks))
	}

	chunk := chunks[0]
	vector, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return nil, fmt.Errorf("embed chunk: %w", err)
	}
	chunk.Vector = vector
	chunk.IndexedAt = time.Now().UTC()
	chunk.EmbeddingModel = s.embedder.ModelName()

	if _, err := s.store.InsertMany(ctx, []models.Chunk{chunk}); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func failed(err error) (models.IndexingResult, error) {
	return models.IndexingResult{
		Success:    false,
		ChunkCount: 0,
		Message:    err.Error(),
	}, err
}

// titleFromSlug turns "getting-started-guide" into "Getting Started Guide".
func titleFromSlug(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
