package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL        = "http://localhost:11434"
	DefaultEmbeddingModel = "qwen3-embedding"
	DefaultEmbedTimeout   = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// EmbedderConfig holds configuration for the Ollama embedding client.
type EmbedderConfig struct {
	BaseURL        string
	Model          string
	Dimensions     int
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration

	// DegradedMode masks exhausted embedding failures with a
	// dimension-correct zero vector instead of failing the caller.
	DegradedMode bool

	// RateLimit is the client-side embedding requests-per-second cap.
	// Zero disables limiting.
	RateLimit int

	// Concurrency caps how many embedding calls EmbedBatch keeps in
	// flight at once. Values below 2 embed sequentially.
	Concurrency int

	// PacingEvery/PacingDelay insert a delay after every PacingEvery texts
	// on the sequential batch path, to bound load on the embedding service.
	// Ignored when embedding concurrently; the rate limiter governs there.
	PacingEvery int
	PacingDelay time.Duration
}

// Embedder turns text into fixed-dimension vectors by calling an
// Ollama-compatible embeddings endpoint. It is stateless across calls
// except for configuration.
type Embedder struct {
	client         *http.Client
	baseURL        string
	model          string
	dimensions     int
	timeout        time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
	degradedMode   bool
	concurrency    int
	pacingEvery    int
	pacingDelay    time.Duration
	limiter        *rate.Limiter
}

// embedRequest is the Ollama API request format.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the Ollama API response format.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewEmbedder creates a new Ollama embedding client.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultEmbedTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return &Embedder{
		client:         &http.Client{},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		model:          cfg.Model,
		dimensions:     cfg.Dimensions,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		degradedMode:   cfg.DegradedMode,
		concurrency:    cfg.Concurrency,
		pacingEvery:    cfg.PacingEvery,
		pacingDelay:    cfg.PacingDelay,
		limiter:        limiter,
	}
}

// Embed generates a vector embedding for the given text. Transient upstream
// failures (timeout, non-2xx, malformed body, wrong dimension) are retried
// with exponential backoff; once attempts are exhausted the error surfaces,
// unless degraded mode is on, in which case a zero vector is returned and a
// warning logged.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", utils.ErrValidation)
	}

	tracer := otel.Tracer("ollama-embedder")
	ctx, span := tracer.Start(ctx, "ollama.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("ollama.model", e.model),
		attribute.Int("ollama.text_length", len(text)),
	)

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			// Base delay doubles per attempt
			delay := e.retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", utils.ErrUpstreamTimeout, ctx.Err())
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrUpstreamTimeout, err)
		}

		vec, err := e.embedOnce(ctx, text)
		if err == nil {
			span.SetAttributes(attribute.Int("ollama.attempts", attempt+1))
			return vec, nil
		}
		lastErr = err
		logger.Warn("embedding attempt failed",
			"model", e.model, "attempt", attempt+1, "error", err)

		// Validation errors never heal on retry
		if errors.Is(err, utils.ErrValidation) {
			break
		}
	}

	span.SetAttributes(attribute.Bool("ollama.exhausted", true))
	if e.degradedMode {
		logger.Warn("embedding retries exhausted, returning fallback zero vector",
			"model", e.model, "error", lastErr)
		span.SetAttributes(attribute.Bool("ollama.degraded_fallback", true))
		return e.ZeroVector(), nil
	}
	return nil, lastErr
}

// embedOnce performs a single time-boxed call to the embeddings endpoint and
// validates the returned dimension.
func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	jsonBody, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", utils.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", utils.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: embeddings API returned status %d: %s",
			utils.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", utils.ErrUpstreamUnavailable, err)
	}

	if len(embedResp.Embedding) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, expected %d",
			utils.ErrDimensionMismatch, len(embedResp.Embedding), e.dimensions)
	}

	return embedResp.Embedding, nil
}

// EmbedBatch embeds multiple texts, one vector per input in the same order.
// Calls are sequential with an optional pacing delay unless a concurrency cap
// above 1 is configured, in which case a bounded worker group embeds
// concurrently while preserving input-order correspondence. The first failure
// cancels outstanding work and surfaces to the caller.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	if e.concurrency < 2 || len(texts) < 2 {
		for i, text := range texts {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed text %d: %w", i, err)
			}
			vectors[i] = vec

			if e.pacingEvery > 0 && (i+1)%e.pacingEvery == 0 && i+1 < len(texts) {
				select {
				case <-time.After(e.pacingDelay):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %v", utils.ErrUpstreamTimeout, ctx.Err())
				}
			}
		}
		return vectors, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// ZeroVector returns a dimension-correct fallback vector.
func (e *Embedder) ZeroVector() []float32 {
	return make([]float32, e.dimensions)
}

// Dimensions returns the configured embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the embedding model identifier.
func (e *Embedder) ModelName() string {
	return e.model
}

// Ping checks reachability of the Ollama instance via the lightweight
// /api/tags endpoint without running inference.
func (e *Embedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama returned status %d", utils.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}

// classifyTransportError maps a transport-level failure onto the closed error
// set: deadline and timeout failures become ErrUpstreamTimeout, connection
// refusals and everything else ErrUpstreamUnavailable.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", utils.ErrUpstreamTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", utils.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: service not running: %v", utils.ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%w: %v", utils.ErrUpstreamUnavailable, err)
}
