package services

import (
	"context"
	"strings"
	"testing"

	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator records the prompt and returns a canned answer.
type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubGenerator) ModelName() string { return "mistral" }

func scoredChunk(id, title, text string, score float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk: models.Chunk{ChunkID: id, Title: title, SourceID: id, Text: text},
		Score: score,
	}
}

func TestAnswerBuildsContextInRetrievalOrder(t *testing.T) {
	store := &stubStore{searchOut: []models.ScoredChunk{
		scoredChunk("best", "Best Doc", "most relevant content", 0.9),
		scoredChunk("next", "Next Doc", "second most relevant", 0.7),
	}}
	generator := &stubGenerator{answer: "  Paris is the capital.  "}
	svc := NewRAGService(&stubEmbedder{dims: 4}, generator, store, 5)

	result, err := svc.Answer(context.Background(), "What is the capital?")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", result.Answer)

	// Context block lists best match first
	best := strings.Index(generator.prompt, "most relevant content")
	next := strings.Index(generator.prompt, "second most relevant")
	require.Greater(t, best, -1)
	require.Greater(t, next, -1)
	assert.Less(t, best, next)
	assert.Contains(t, generator.prompt, "Source: Best Doc")
	assert.Contains(t, generator.prompt, RefusalSentence)

	// Sources come from the same retrieval that built the context
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "best", result.Sources[0].SourceID)
	assert.Equal(t, 0.9, result.Sources[0].Score)
}

func TestAnswerEmptyRetrievalUsesNoContextMarker(t *testing.T) {
	store := &stubStore{}
	generator := &stubGenerator{answer: RefusalSentence}
	svc := NewRAGService(&stubEmbedder{dims: 4}, generator, store, 5)

	result, err := svc.Answer(context.Background(), "Anything in there?")
	require.NoError(t, err)
	assert.Contains(t, generator.prompt, NoContextMarker)
	assert.Equal(t, RefusalSentence, result.Answer)
	assert.Empty(t, result.Sources)
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	svc := NewRAGService(&stubEmbedder{dims: 4}, &stubGenerator{}, &stubStore{}, 5)

	_, err := svc.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestAnswerDistinguishesFailureStages(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		svc := NewRAGService(&stubEmbedder{dims: 4, embedErr: utils.ErrUpstreamTimeout}, &stubGenerator{}, &stubStore{}, 5)
		_, err := svc.Answer(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrUpstreamTimeout)
		assert.Contains(t, err.Error(), "embed question")
	})

	t.Run("retrieval failure", func(t *testing.T) {
		store := &stubStore{searchErr: utils.ErrPersistence}
		svc := NewRAGService(&stubEmbedder{dims: 4}, &stubGenerator{}, store, 5)
		_, err := svc.Answer(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrPersistence)
		assert.Contains(t, err.Error(), "retrieve context")
	})

	t.Run("generation failure", func(t *testing.T) {
		generator := &stubGenerator{err: utils.ErrUpstreamUnavailable}
		svc := NewRAGService(&stubEmbedder{dims: 4}, generator, &stubStore{}, 5)
		_, err := svc.Answer(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrUpstreamUnavailable)
		assert.Contains(t, err.Error(), "generate answer")
	})
}

func TestAnswerTruncatesLongExcerpts(t *testing.T) {
	longText := strings.Repeat("x", 300)
	store := &stubStore{searchOut: []models.ScoredChunk{
		scoredChunk("long", "Long Doc", longText, 0.5),
	}}
	svc := NewRAGService(&stubEmbedder{dims: 4}, &stubGenerator{answer: "ok"}, store, 5)

	result, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Len(t, result.Sources[0].Excerpt, 203)
	assert.True(t, strings.HasSuffix(result.Sources[0].Excerpt, "..."))
}

type memAnswerCache struct {
	entries map[string]models.QueryResult
	hits    int
}

func (m *memAnswerCache) Get(ctx context.Context, question string) (models.QueryResult, bool) {
	result, ok := m.entries[question]
	if ok {
		m.hits++
	}
	return result, ok
}

func (m *memAnswerCache) Set(ctx context.Context, question string, result models.QueryResult) {
	if m.entries == nil {
		m.entries = map[string]models.QueryResult{}
	}
	m.entries[question] = result
}

func TestAnswerCacheShortCircuitsPipeline(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	generator := &stubGenerator{answer: "fresh answer"}
	cache := &memAnswerCache{}
	svc := NewRAGService(embedder, generator, &stubStore{}, 5).WithCache(cache)

	first, err := svc.Answer(context.Background(), "repeated question")
	require.NoError(t, err)

	embedsBefore := embedder.calls
	second, err := svc.Answer(context.Background(), "repeated question")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, embedsBefore, embedder.calls, "cache hit skips embedding")
}

func TestBuildContextBlockLabelsMissingTitles(t *testing.T) {
	block := buildContextBlock([]models.ScoredChunk{
		scoredChunk("untitled", "", "content without a title", 0.1),
	})
	assert.Contains(t, block, "Source: N/A")
}
