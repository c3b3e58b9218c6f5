package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/config"
	apperrors "github.com/zatekoja/medisync/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// consecutive failures before the breaker opens
	breakerThreshold = 5
)

// Client implements providers.LLMProvider over the chat completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

var _ providers.LLMProvider = (*Client)(nil)

// NewClient creates a new OpenAI client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, apperrors.ErrMissingAPIKey
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.ClassifierModel
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		breaker:    newBreaker(),
	}, nil
}

func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm == 0 {
		rpm = 60
	}
	if rpm < 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion and returns the first choice's content.
// A 401 or 403 wraps providers.ErrLLMUnauthorized.
func (c *Client) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			recordOpenAIMetric(ctx, model, 0, 0, err)
			return "", err
		}
		recordOpenAIRateLimitWait(ctx, model, time.Since(waitStart))
	}

	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormat == providers.ResponseFormatJSON {
		payload.ResponseFormat = &responseFormat{Type: string(providers.ResponseFormatJSON)}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, model, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperrors.NewExternalError("openai circuit breaker open", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *Client) send(ctx context.Context, model string, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		recordOpenAIMetric(ctx, model, 0, time.Since(start), err)
		return "", apperrors.NewExternalError("openai request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		recordOpenAIMetric(ctx, model, resp.StatusCode, time.Since(start), statusErr)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", fmt.Errorf("%w: openai request failed with status %d", providers.ErrLLMUnauthorized, resp.StatusCode)
		}
		return "", apperrors.NewExternalError("openai request failed", statusErr)
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordOpenAIMetric(ctx, model, resp.StatusCode, time.Since(start), err)
		return "", apperrors.NewExternalError("failed to decode openai response", err)
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == "" {
		err := errors.New("missing completion content")
		recordOpenAIMetric(ctx, model, resp.StatusCode, time.Since(start), err)
		return "", apperrors.NewExternalError("openai response has no content", err)
	}

	recordOpenAIMetric(ctx, model, resp.StatusCode, time.Since(start), nil)
	return stripCodeFence(envelope.Choices[0].Message.Content), nil
}

// stripCodeFence removes a markdown code block wrapper if present.
func stripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

type openAIMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var (
	openaiMetricsOnce sync.Once
	openaiMetricsOK   bool
	openaiMetrics     openAIMetrics
)

func ensureOpenAIMetrics() {
	openaiMetricsOnce.Do(func() {
		meter := otel.Meter("github.com/zatekoja/medisync/openai")

		requestCount, err := meter.Int64Counter(
			"ai.openai.request.count",
			metric.WithDescription("Number of OpenAI requests"),
		)
		if err != nil {
			return
		}
		requestDuration, err := meter.Float64Histogram(
			"ai.openai.request.duration",
			metric.WithDescription("OpenAI request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		requestErrors, err := meter.Int64Counter(
			"ai.openai.request.errors",
			metric.WithDescription("Number of OpenAI request errors"),
		)
		if err != nil {
			return
		}
		rateLimitWait, err := meter.Float64Histogram(
			"ai.openai.rate_limit.wait",
			metric.WithDescription("Time spent waiting for OpenAI rate limiter in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}

		openaiMetrics = openAIMetrics{
			requestCount:    requestCount,
			requestDuration: requestDuration,
			requestErrors:   requestErrors,
			rateLimitWait:   rateLimitWait,
		}
		openaiMetricsOK = true
	})
}

func recordOpenAIMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	ensureOpenAIMetrics()
	if !openaiMetricsOK {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	openaiMetrics.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	openaiMetrics.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		openaiMetrics.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordOpenAIRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	ensureOpenAIMetrics()
	if !openaiMetricsOK {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	openaiMetrics.rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(attrs...))
}
