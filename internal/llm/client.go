// Package llm is the optional language-model collaborator of the pipeline.
//
// The Client talks to any OpenAI-compatible chat endpoint through
// langchaingo. It generates resolution plans for human agents and picks
// between close configuration matches for the configuration analyzer. Every
// call is rate limited and retried with exponential backoff; callers treat
// failures as "no opinion" and continue deterministically.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/llm"

const (
	defaultModel       = "llama-3.3-70b-versatile"
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
	defaultRateLimit   = 1.0 // requests per second
	defaultBurst       = 3
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	defaultTimeout     = 30 * time.Second
)

var (
	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrNoJSON is returned when a response carries no JSON object.
	ErrNoJSON = errors.New("response contains no JSON object")
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int

	// RateLimit is in requests per second.
	RateLimit float64
	Burst     int

	// MaxRetries defaults to 2; negative disables retries.
	MaxRetries int

	// Timeout bounds a single attempt.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Client wraps a langchaingo model with throttling and retries.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	timeout     time.Duration
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New creates a Client for an OpenAI-compatible endpoint.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	cfg.applyDefaults()
	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel creates a Client around an existing model.
func NewWithModel(model llms.Model, cfg Config, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxRetries:  max(cfg.MaxRetries, 0),
		backoff:     defaultBaseBackoff,
		timeout:     cfg.Timeout,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
	}
}

// complete sends a system and a user message and returns the text of the
// first choice.
func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.generate(ctx, msgs)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if errors.Is(err, ErrEmptyResponse) {
			break
		}
		c.logger.Debug("llm attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", fmt.Errorf("llm request failed: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, msgs []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// extractJSON returns the outermost JSON object in raw, ignoring code
// fences and surrounding prose.
func extractJSON(raw string) (string, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```JSON", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first < 0 || last <= first {
		return "", ErrNoJSON
	}
	return cleaned[first : last+1], nil
}
