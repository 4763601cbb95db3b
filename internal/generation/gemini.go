package generation

import (
	"context"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
	"github.com/bizmatters/agent-builder/pages-builder/internal/prompt"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates through the Gemini API. The underlying client is
// created on first use so a missing key surfaces per round.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini generator.
func NewGeminiClient(cfg config.GenerationConfig, logger *zap.Logger) *GeminiClient {
	model := cfg.Model
	if model == "" || model == config.Default().Generation.Model {
		model = defaultGeminiModel
	}
	baseURL := cfg.BaseURL
	if baseURL == config.Default().Generation.BaseURL {
		baseURL = ""
	}

	return &GeminiClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		tracer:  otel.Tracer("gemini-client"),
		breaker: newBreaker("gemini", logger),
		logger:  logger,
	}
}

// Generate sends the prompt with the system text as system instruction.
func (c *GeminiClient) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	ctx, span := c.tracer.Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	client, err := c.getClient(ctx)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(p.User), &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		})
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if text == "" {
			return "", ErrNoContent
		}
		return text, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to generate site: %w", err)
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	return text, nil
}

func (c *GeminiClient) getClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.client = client
	return client, nil
}

// CheckConfig reports a missing API key.
func (c *GeminiClient) CheckConfig() error {
	if c.apiKey == "" {
		return ErrMissingCredential
	}
	return nil
}
