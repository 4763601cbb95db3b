package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
	"github.com/bizmatters/agent-builder/pages-builder/internal/prompt"
)

const defaultOpenRouterURL = "https://aipipe.org/openrouter/v1"

// OpenRouterClient talks to an OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// ChatRequest is the chat completions request body.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one message of a chat request or response.
type ChatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// ChatResponse is the subset of the chat completions response we read.
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenRouterClient creates a client for the configured endpoint.
func NewOpenRouterClient(cfg config.GenerationConfig, logger *zap.Logger) *OpenRouterClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
		logger.Warn("generation base url not set, using default", zap.String("base_url", baseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenRouterClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("openrouter-client"),
		breaker:    newBreaker("openrouter", logger),
		logger:     logger,
	}
}

// Generate sends the prompt and returns the first choice's message content.
func (c *OpenRouterClient) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	ctx, span := c.tracer.Start(ctx, "openrouter.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_chars", len(p.System)+len(p.User)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generateInternal(ctx, p)
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to generate site: %w", err)
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	return text, nil
}

func (c *OpenRouterClient) generateInternal(ctx context.Context, p prompt.Prompt) (string, error) {
	system, user := p.System, p.User
	body, err := json.Marshal(ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: &system},
			{Role: "user", Content: &user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return "", fmt.Errorf("generation backend returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return "", fmt.Errorf("generation backend returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var chat ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w (status %d)", ErrNoContent, resp.StatusCode)
	}

	return *chat.Choices[0].Message.Content, nil
}

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// CheckConfig reports a missing API key.
func (c *OpenRouterClient) CheckConfig() error {
	if c.apiKey == "" {
		return ErrMissingCredential
	}
	return nil
}
