package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// stubEmbedder satisfies EmbeddingClient without network calls.
type stubEmbedder struct {
	dims       int
	model      string
	embedErr   error
	pingErr    error
	calls      int
	batchCalls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	vec := make([]float32, s.dims)
	vec[0] = float32(len(text))
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *stubEmbedder) ZeroVector() []float32 { return make([]float32, s.dims) }
func (s *stubEmbedder) Dimensions() int       { return s.dims }
func (s *stubEmbedder) ModelName() string     { return s.model }
func (s *stubEmbedder) Ping(ctx context.Context) error {
	return s.pingErr
}

// stubStore satisfies ChunkStore in memory.
type stubStore struct {
	inserted    []models.Chunk
	insertCalls int
	insertErr   error
	searchOut   []models.ScoredChunk
	searchErr   error
	deleteWhere bson.M
	deletedN    int64
}

func (s *stubStore) InsertMany(ctx context.Context, chunks []models.Chunk) (int, error) {
	s.insertCalls++
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, chunks...)
	return len(chunks), nil
}

func (s *stubStore) FindByChunkID(ctx context.Context, chunkID string) (*models.Chunk, error) {
	for i := range s.inserted {
		if s.inserted[i].ChunkID == chunkID {
			return &s.inserted[i], nil
		}
	}
	return nil, nil
}

func (s *stubStore) FindAll(ctx context.Context) ([]models.Chunk, error) {
	return s.inserted, nil
}

func (s *stubStore) DeleteByChunkID(ctx context.Context, chunkID string) (int64, error) {
	for i := range s.inserted {
		if s.inserted[i].ChunkID == chunkID {
			s.inserted = append(s.inserted[:i], s.inserted[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *stubStore) DeleteWhere(ctx context.Context, filter bson.M) (int64, error) {
	s.deleteWhere = filter
	return s.deletedN, nil
}

func (s *stubStore) SimilaritySearch(ctx context.Context, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.searchOut) > k {
		return s.searchOut[:k], nil
	}
	return s.searchOut, nil
}

func newTestIndexingService(embedder *stubEmbedder, store *stubStore) *IndexingService {
	chunker := NewChunker(500, 40)
	return NewIndexingService(chunker, embedder, store, 50)
}

func TestIndexDocumentSuccess(t *testing.T) {
	embedder := &stubEmbedder{dims: 4, model: "qwen3-embedding"}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	para := strings.Repeat("Knowledge bases hold chunked document text. ", 10)
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	result, err := svc.IndexDocument(context.Background(), text, SourceMeta{SourceID: "kb-guide", Title: "KB Guide"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, len(store.inserted), result.ChunkCount)
	require.NotEmpty(t, store.inserted)
	assert.Equal(t, 1, embedder.batchCalls, "all chunks embed through one batch call")

	for _, chunk := range store.inserted {
		assert.Len(t, chunk.Vector, 4)
		assert.Equal(t, "qwen3-embedding", chunk.EmbeddingModel)
		assert.Equal(t, "kb-guide", chunk.SourceID)
		assert.False(t, chunk.IndexedAt.IsZero())
	}
}

func TestIndexTwoParagraphDocument(t *testing.T) {
	embedder := &stubEmbedder{dims: 4, model: "qwen3-embedding"}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	// Two ~600-character paragraphs against a 500-character target
	para := strings.TrimSpace(strings.Repeat("Retrieval pipelines persist fragments with vectors. ", 12))
	text := para + "\n\n" + para

	result, err := svc.IndexDocument(context.Background(), text, SourceMeta{SourceID: "two-para"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, result.ChunkCount, 2)
	assert.LessOrEqual(t, result.ChunkCount, 4)
	for _, chunk := range store.inserted {
		assert.GreaterOrEqual(t, len(chunk.Text), 40)
	}
}

func TestReindexingProducesIndependentChunkSets(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	text := strings.Repeat("The same document indexed twice yields fresh chunks. ", 5)
	meta := SourceMeta{SourceID: "dup"}

	first, err := svc.IndexDocument(context.Background(), text, meta)
	require.NoError(t, err)
	second, err := svc.IndexDocument(context.Background(), text, meta)
	require.NoError(t, err)

	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	require.Len(t, store.inserted, first.ChunkCount+second.ChunkCount)

	seen := map[string]bool{}
	for _, chunk := range store.inserted {
		assert.False(t, seen[chunk.ChunkID], "chunk ids must be unique across runs")
		seen[chunk.ChunkID] = true
	}
}

func TestIndexDocumentContentTooShort(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	result, err := svc.IndexDocument(context.Background(), "too short", SourceMeta{SourceID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrContentTooShort)
	assert.False(t, result.Success)
	assert.Zero(t, result.ChunkCount)
	assert.Zero(t, store.insertCalls)
	assert.Zero(t, embedder.calls)
}

func TestIndexDocumentNoChunksProduced(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	store := &stubStore{}
	// Minimum chunk floor above any fragment this text can produce
	chunker := NewChunker(500, 400)
	svc := NewIndexingService(chunker, embedder, store, 50)

	text := "One short paragraph.\n\nAnother short paragraph to clear the content floor."
	result, err := svc.IndexDocument(context.Background(), text, SourceMeta{SourceID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrNoChunksProduced)
	assert.False(t, result.Success)
	assert.Zero(t, store.insertCalls)
}

func TestIndexDocumentEmbedFailureWritesNothing(t *testing.T) {
	embedder := &stubEmbedder{dims: 4, embedErr: utils.ErrUpstreamTimeout}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	text := strings.Repeat("Failure during embedding must leave the store untouched. ", 5)
	result, err := svc.IndexDocument(context.Background(), text, SourceMeta{SourceID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrUpstreamTimeout)
	assert.False(t, result.Success)
	assert.Zero(t, store.insertCalls, "no partial writes on embed failure")
}

func TestIndexDocumentPersistenceFailure(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	store := &stubStore{insertErr: utils.ErrPersistence}
	svc := newTestIndexingService(embedder, store)

	text := strings.Repeat("Persistence failures surface as errors to the caller. ", 5)
	result, err := svc.IndexDocument(context.Background(), text, SourceMeta{SourceID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrPersistence)
	assert.False(t, result.Success)
}

func TestPurgeStaleChunksFiltersByModel(t *testing.T) {
	embedder := &stubEmbedder{dims: 4, model: "qwen3-embedding"}
	store := &stubStore{deletedN: 7}
	svc := newTestIndexingService(embedder, store)

	deleted, err := svc.PurgeStaleChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.Equal(t, bson.M{"embedding_model": bson.M{"$ne": "qwen3-embedding"}}, store.deleteWhere)
}

func TestAddChunkValidation(t *testing.T) {
	embedder := &stubEmbedder{dims: 4, model: "m"}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	_, err := svc.AddChunk(context.Background(), "   ", SourceMeta{})
	assert.ErrorIs(t, err, utils.ErrValidation)

	chunk, err := svc.AddChunk(context.Background(), strings.Repeat("single fragment text ", 4), SourceMeta{SourceID: "manual"})
	require.NoError(t, err)
	assert.Len(t, chunk.Vector, 4)
	assert.Equal(t, "manual", chunk.SourceID)
	assert.Len(t, store.inserted, 1)
}

func TestIndexFileMissingPath(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	result, err := svc.IndexFile(context.Background(), "/nonexistent/doc.md")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrValidation)
	assert.False(t, result.Success)
}

func TestTitleFromSlug(t *testing.T) {
	assert.Equal(t, "Getting Started Guide", titleFromSlug("getting-started-guide"))
	assert.Equal(t, "Readme", titleFromSlug("readme"))
}

func TestIndexDocumentErrorsAreClosedSet(t *testing.T) {
	embedder := &stubEmbedder{dims: 4, embedErr: errors.New("wrapped transport oddity")}
	store := &stubStore{}
	svc := newTestIndexingService(embedder, store)

	text := strings.Repeat("Unknown embed errors still propagate unchanged. ", 5)
	_, err := svc.IndexDocument(context.Background(), text, SourceMeta{SourceID: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrapped transport oddity")
}
