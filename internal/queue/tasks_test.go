package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/services"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type memEmbedder struct{ dims int }

func (m *memEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, m.dims), nil
}
func (m *memEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i], _ = m.Embed(ctx, text)
	}
	return vectors, nil
}
func (m *memEmbedder) ZeroVector() []float32          { return make([]float32, m.dims) }
func (m *memEmbedder) Dimensions() int                { return m.dims }
func (m *memEmbedder) ModelName() string              { return "qwen3-embedding" }
func (m *memEmbedder) Ping(ctx context.Context) error { return nil }

type memStore struct{ chunks []models.Chunk }

func (m *memStore) InsertMany(ctx context.Context, chunks []models.Chunk) (int, error) {
	m.chunks = append(m.chunks, chunks...)
	return len(chunks), nil
}
func (m *memStore) FindByChunkID(ctx context.Context, id string) (*models.Chunk, error) {
	return nil, nil
}
func (m *memStore) FindAll(ctx context.Context) ([]models.Chunk, error) { return m.chunks, nil }
func (m *memStore) DeleteByChunkID(ctx context.Context, id string) (int64, error) {
	return 0, nil
}
func (m *memStore) DeleteWhere(ctx context.Context, filter bson.M) (int64, error) { return 0, nil }
func (m *memStore) SimilaritySearch(ctx context.Context, v []float32, k int) ([]models.ScoredChunk, error) {
	return nil, nil
}

func newProcessor(store *memStore) *TaskProcessor {
	chunker := services.NewChunker(500, 40)
	indexing := services.NewIndexingService(chunker, &memEmbedder{dims: 4}, store, 50)
	return NewTaskProcessor(indexing)
}

func TestNewIndexTextTaskPayload(t *testing.T) {
	task, err := NewIndexTextTask("doc-1", "Doc One", "some text")
	require.NoError(t, err)
	assert.Equal(t, TaskIndexDocument, task.Type())

	var payload IndexDocumentPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "doc-1", payload.SourceID)
	assert.Equal(t, "Doc One", payload.Title)
	assert.Equal(t, "some text", payload.Text)
	assert.Empty(t, payload.Path)
}

func TestHandleIndexDocumentText(t *testing.T) {
	store := &memStore{}
	processor := newProcessor(store)

	task, err := NewIndexTextTask("doc-1", "Doc",
		strings.Repeat("Async indexing runs the same pipeline as sync. ", 5))
	require.NoError(t, err)

	require.NoError(t, processor.HandleIndexDocument(context.Background(), task))
	assert.NotEmpty(t, store.chunks)
}

func TestHandleIndexDocumentSkipsRetryOnPermanentFailure(t *testing.T) {
	processor := newProcessor(&memStore{})

	// Content below the indexing floor can never succeed on retry
	task, err := NewIndexTextTask("doc-1", "Doc", "tiny")
	require.NoError(t, err)

	err = processor.HandleIndexDocument(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleIndexDocumentEmptyPayload(t *testing.T) {
	processor := newProcessor(&memStore{})

	task := asynq.NewTask(TaskIndexDocument, []byte(`{}`))
	err := processor.HandleIndexDocument(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
