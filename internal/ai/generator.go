package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/utils"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Default configuration values.
const (
	DefaultGenerationModel = "mistral"
	DefaultGenerateTimeout = 60 * time.Second
	DefaultTemperature     = 0.1
	DefaultMaxTokens       = 2048
)

// GeneratorConfig holds configuration for the Ollama generation client.
type GeneratorConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Generator produces text completions from an Ollama-compatible /api/generate
// endpoint. A circuit breaker sheds load when the model keeps failing.
type Generator struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	baseURL     string
	model       string
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

// generateOptions holds generation parameters.
type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// generateResponse is the Ollama /api/generate response format.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewGenerator creates a new Ollama generation client.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenerationModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGenerateTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OllamaGenerate",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Generator{
		client:      &http.Client{},
		breaker:     breaker,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Generate produces a completion for the prompt. Connection refusals surface
// as ErrUpstreamUnavailable ("service not running"), deadline hits as
// ErrUpstreamTimeout, so callers can distinguish the failure modes.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: cannot generate from empty prompt", utils.ErrValidation)
	}

	tracer := otel.Tracer("ollama-generator")
	ctx, span := tracer.Start(ctx, "ollama.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ollama.model", g.model),
		attribute.Int("ollama.prompt_length", len(prompt)),
	)

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.generateOnce(ctx, prompt)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("ollama.circuit_breaker_open", true))
			return "", fmt.Errorf("%w: generation circuit breaker open", utils.ErrUpstreamUnavailable)
		}
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return "", err
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("ollama.response_length", len(text)))
	return text, nil
}

func (g *Generator) generateOnce(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	jsonBody, err := json.Marshal(generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: &generateOptions{
			NumPredict:  g.maxTokens,
			Temperature: g.temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", utils.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", utils.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: generate API returned status %d: %s",
			utils.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", utils.ErrUpstreamUnavailable, err)
	}

	return genResp.Response, nil
}

// ModelName returns the generation model identifier.
func (g *Generator) ModelName() string {
	return g.model
}
