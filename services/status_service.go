package services

import (
	"context"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/models"

	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// StorePinger is the slice of the MongoDB client the status reporter needs.
type StorePinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

const (
	statusConnected = "connected"
	statusError     = "error"
)

// StatusService probes the persistence backend and the model endpoint for
// health reporting. Probes are independent and individually time-boxed; one
// failing only degrades its own field.
type StatusService struct {
	store          StorePinger
	embedder       EmbeddingClient
	generator      GenerationClient
	probeTimeout   time.Duration
	liveEmbedProbe bool
}

// NewStatusService wires the status reporter.
func NewStatusService(store StorePinger, embedder EmbeddingClient, generator GenerationClient, probeTimeout time.Duration, liveEmbedProbe bool) *StatusService {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &StatusService{
		store:          store,
		embedder:       embedder,
		generator:      generator,
		probeTimeout:   probeTimeout,
		liveEmbedProbe: liveEmbedProbe,
	}
}

// Status recomputes a fresh snapshot on every call.
func (s *StatusService) Status(ctx context.Context) models.SystemStatus {
	status := models.SystemStatus{
		Database:         statusError,
		Ollama:           statusError,
		EmbeddingModel:   s.embedder.ModelName(),
		GenerationModel:  s.generator.ModelName(),
		VectorDimensions: s.embedder.Dimensions(),
	}

	if err := s.probeStore(ctx); err != nil {
		logger.Warn("database probe failed", "error", err)
	} else {
		status.Database = statusConnected
	}

	if err := s.probeOllama(ctx); err != nil {
		logger.Warn("ollama probe failed", "error", err)
	} else {
		status.Ollama = statusConnected
	}

	return status
}

func (s *StatusService) probeStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	return s.store.Ping(ctx, readpref.Primary())
}

func (s *StatusService) probeOllama(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	if err := s.embedder.Ping(pingCtx); err != nil {
		return err
	}

	if !s.liveEmbedProbe {
		return nil
	}

	// Optional deeper probe: run one real embedding call
	embedCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	_, err := s.embedder.Embed(embedCtx, "status probe")
	return err
}
