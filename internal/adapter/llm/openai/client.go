// Package openai adapts the OpenAI chat completions API to the text
// generation port. Groq exposes an OpenAI-compatible API, so the same
// client serves both providers with a different base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
)

const (
	groqBaseURL    = "https://api.groq.com/openai/v1"
	defaultTimeout = 60 * time.Second
)

type Client struct {
	client      *goopenai.Client
	name        string
	model       string
	apiKey      string
	retryConfig llmhttp.RetryConfig
	logger      llmhttp.Logger
	metrics     llmhttp.Metrics
	pricing     llmhttp.Pricing
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	timeout     time.Duration
	retryConfig llmhttp.RetryConfig
	logger      llmhttp.Logger
	metrics     llmhttp.Metrics
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) { o.timeout = timeout }
}

func WithRetryConfig(config llmhttp.RetryConfig) Option {
	return func(o *clientOptions) { o.retryConfig = config }
}

func WithLogger(logger llmhttp.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

func WithMetrics(metrics llmhttp.Metrics) Option {
	return func(o *clientOptions) { o.metrics = metrics }
}

// NewClient creates an OpenAI chat client.
func NewClient(apiKey, model string, opts ...Option) *Client {
	return newClient("openai", "", apiKey, model, opts...)
}

// NewGroqClient creates a client against Groq's OpenAI-compatible API.
func NewGroqClient(apiKey, model string, opts ...Option) *Client {
	return newClient("groq", groqBaseURL, apiKey, model, opts...)
}

func newClient(name, baseURL, apiKey, model string, opts ...Option) *Client {
	options := clientOptions{
		baseURL:     baseURL,
		timeout:     defaultTimeout,
		retryConfig: llmhttp.DefaultRetryConfig(),
		logger:      llmhttp.NewHCLogger(nil),
		metrics:     llmhttp.NewDefaultMetrics(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	config := goopenai.DefaultConfig(apiKey)
	if options.baseURL != "" {
		config.BaseURL = options.baseURL
	}
	config.HTTPClient = &http.Client{Timeout: options.timeout}

	return &Client{
		client:      goopenai.NewClientWithConfig(config),
		name:        name,
		model:       model,
		apiKey:      apiKey,
		retryConfig: options.retryConfig,
		logger:      options.logger,
		metrics:     options.metrics,
		pricing:     llmhttp.NewDefaultPricing(),
	}
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.logger.LogRequest(ctx, llmhttp.RequestLog{
		Provider:    c.name,
		Model:       c.model,
		Timestamp:   time.Now(),
		PromptChars: len(systemPrompt) + len(userPrompt),
		APIKey:      c.apiKey,
	})
	c.metrics.RecordRequest(c.name, c.model)

	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
	}

	start := time.Now()
	var resp goopenai.ChatCompletionResponse
	err := llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, req)
		if callErr != nil {
			return c.mapError(callErr)
		}
		return nil
	}, c.retryConfig)
	duration := time.Since(start)

	if err != nil {
		c.logCallError(ctx, err, duration)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response choices", c.name)
	}

	cost := c.pricing.GetCost(c.name, c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.metrics.RecordDuration(c.name, c.model, duration)
	c.metrics.RecordTokens(c.name, c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.metrics.RecordCost(c.name, c.model, cost)
	c.logger.LogResponse(ctx, llmhttp.ResponseLog{
		Provider:     c.name,
		Model:        resp.Model,
		Timestamp:    time.Now(),
		Duration:     duration,
		TokensIn:     resp.Usage.PromptTokens,
		TokensOut:    resp.Usage.CompletionTokens,
		Cost:         cost,
		StatusCode:   http.StatusOK,
		FinishReason: string(resp.Choices[0].FinishReason),
	})

	return resp.Choices[0].Message.Content, nil
}

// mapError converts go-openai errors to typed errors so the shared
// retry loop can decide what is retryable.
func (c *Client) mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &llmhttp.Error{Type: llmhttp.ErrTypeAuthentication, Message: message, StatusCode: apiErr.HTTPStatusCode, Provider: c.name}
		case http.StatusTooManyRequests:
			return &llmhttp.Error{Type: llmhttp.ErrTypeRateLimit, Message: message, StatusCode: apiErr.HTTPStatusCode, Retryable: true, Provider: c.name}
		case http.StatusNotFound:
			return &llmhttp.Error{Type: llmhttp.ErrTypeModelNotFound, Message: message, StatusCode: apiErr.HTTPStatusCode, Provider: c.name}
		case http.StatusBadRequest:
			return &llmhttp.Error{Type: llmhttp.ErrTypeInvalidRequest, Message: message, StatusCode: apiErr.HTTPStatusCode, Provider: c.name}
		case http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
			return &llmhttp.Error{Type: llmhttp.ErrTypeServiceUnavailable, Message: message, StatusCode: apiErr.HTTPStatusCode, Retryable: true, Provider: c.name}
		default:
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: message, StatusCode: apiErr.HTTPStatusCode, Provider: c.name}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llmhttp.Error{Type: llmhttp.ErrTypeTimeout, Message: err.Error(), Retryable: true, Provider: c.name}
	}
	return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: err.Error(), Provider: c.name}
}

func (c *Client) logCallError(ctx context.Context, err error, duration time.Duration) {
	errType := llmhttp.ErrTypeUnknown
	retryable := false
	statusCode := 0
	var httpErr *llmhttp.Error
	if errors.As(err, &httpErr) {
		errType = httpErr.Type
		retryable = httpErr.Retryable
		statusCode = httpErr.StatusCode
	}
	c.metrics.RecordError(c.name, c.model, errType)
	c.logger.LogError(ctx, llmhttp.ErrorLog{
		Provider:   c.name,
		Model:      c.model,
		Timestamp:  time.Now(),
		Duration:   duration,
		Error:      err,
		ErrorType:  errType,
		StatusCode: statusCode,
		Retryable:  retryable,
	})
}
