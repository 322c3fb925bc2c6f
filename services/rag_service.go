package services

import (
	"context"
	"fmt"
	"strings"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/utils"
)

// GenerationClient is the contract the answer composer expects from the
// generative model boundary. Satisfied by *ai.Generator.
type GenerationClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// NoContextMarker is passed into the prompt when retrieval finds nothing.
// It is deliberately not an empty string so the model sees an explicit signal.
const NoContextMarker = "No relevant information was found in the knowledge base."

// RefusalSentence is the literal sentence the model is instructed to emit
// when the supplied context cannot answer the question.
const RefusalSentence = "I do not have enough information in my knowledge base to answer this question accurately."

const promptTemplate = `You are a helpful and precise AI assistant. Answer the user's question based only on the provided context.

Provided context:
%s

User question: %s

If the context contains relevant and sufficient information, give a clear and concise answer.
If the context does not contain relevant information to answer the question, reply exactly: "%s"

Answer:`

const excerptLength = 200

// RAGService composes retrieval and generation into a single answer chain.
type RAGService struct {
	embedder  EmbeddingClient
	generator GenerationClient
	store     ChunkStore
	topK      int
	cache     AnswerCache
}

// NewRAGService wires the query chain.
func NewRAGService(embedder EmbeddingClient, generator GenerationClient, store ChunkStore, topK int) *RAGService {
	if topK <= 0 {
		topK = 5
	}
	return &RAGService{
		embedder:  embedder,
		generator: generator,
		store:     store,
		topK:      topK,
	}
}

// WithCache enables answer caching for repeated questions.
func (s *RAGService) WithCache(cache AnswerCache) *RAGService {
	s.cache = cache
	return s
}

// Answer embeds the question, retrieves the top-K most similar chunks, builds
// a context block in retrieval order, and asks the generative model. The
// returned sources come from the same retrieval call that built the context.
// Errors distinguish retrieval failures from generation failures.
func (s *RAGService) Answer(ctx context.Context, question string) (models.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.QueryResult{}, fmt.Errorf("%w: question must not be empty", utils.ErrValidation)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, question); ok {
			logger.Debug("answer served from cache")
			return cached, nil
		}
	}

	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("embed question: %w", err)
	}

	retrieved, err := s.store.SimilaritySearch(ctx, queryVector, s.topK)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := fmt.Sprintf(promptTemplate, buildContextBlock(retrieved), question, RefusalSentence)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]models.SourceRef, 0, len(retrieved))
	for _, r := range retrieved {
		sources = append(sources, models.SourceRef{
			Title:    r.Chunk.Title,
			SourceID: r.Chunk.SourceID,
			Excerpt:  excerpt(r.Chunk.Text),
			Score:    r.Score,
		})
	}

	result := models.QueryResult{
		Answer:  strings.TrimSpace(answer),
		Sources: sources,
	}
	if s.cache != nil {
		s.cache.Set(ctx, question, result)
	}

	logger.Info("answer generated", "sources", len(sources))
	return result, nil
}

// buildContextBlock concatenates retrieved chunks, best match first, each
// prefixed with its source label.
func buildContextBlock(retrieved []models.ScoredChunk) string {
	if len(retrieved) == 0 {
		return NoContextMarker
	}

	parts := make([]string, 0, len(retrieved))
	for _, r := range retrieved {
		title := r.Chunk.Title
		if title == "" {
			title = "N/A"
		}
		parts = append(parts, fmt.Sprintf("Source: %s\nContent: %s", title, r.Chunk.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func excerpt(text string) string {
	if len(text) <= excerptLength {
		return text
	}
	return text[:excerptLength] + "..."
}
