package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/services"
	"knowledgebase-rag-service/utils"

	"github.com/hibiken/asynq"
)

const (
	TaskIndexDocument = "document:index"
)

// IndexDocumentPayload describes one async indexing job. Either Path or Text
// is set; Path wins when both are present.
type IndexDocumentPayload struct {
	Path     string `json:"path,omitempty"`
	Text     string `json:"text,omitempty"`
	SourceID string `json:"source_id,omitempty"`
	Title    string `json:"title,omitempty"`
}

// NewIndexFileTask enqueues indexing of a document on disk.
func NewIndexFileTask(path string) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexDocumentPayload{Path: path})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIndexDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// NewIndexTextTask enqueues indexing of raw text with caller metadata.
func NewIndexTextTask(sourceID, title, text string) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexDocumentPayload{
		Text:     text,
		SourceID: sourceID,
		Title:    title,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIndexDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor handles queued indexing jobs in the worker process.
type TaskProcessor struct {
	indexing *services.IndexingService
}

func NewTaskProcessor(indexing *services.IndexingService) *TaskProcessor {
	return &TaskProcessor{indexing: indexing}
}

// HandleIndexDocument runs one indexing job. Validation failures skip retry:
// the same input will fail the same way every time.
func (p *TaskProcessor) HandleIndexDocument(ctx context.Context, t *asynq.Task) error {
	var payload IndexDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	var err error
	switch {
	case payload.Path != "":
		logger.Info("processing async index task", "path", payload.Path)
		_, err = p.indexing.IndexFile(ctx, payload.Path)
	case payload.Text != "":
		logger.Info("processing async index task", "source_id", payload.SourceID)
		_, err = p.indexing.IndexDocument(ctx, payload.Text, services.SourceMeta{
			SourceID: payload.SourceID,
			Title:    payload.Title,
		})
	default:
		return fmt.Errorf("empty payload: %w", asynq.SkipRetry)
	}

	if err != nil {
		if errors.Is(err, utils.ErrValidation) ||
			errors.Is(err, utils.ErrContentTooShort) ||
			errors.Is(err, utils.ErrNoChunksProduced) {
			logger.Error("index task rejected", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err // transient; will retry
	}
	return nil
}
