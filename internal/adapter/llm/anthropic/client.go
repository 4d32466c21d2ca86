// Package anthropic is a hand-rolled client for the Anthropic Messages
// API implementing the text generation port.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
)

const (
	providerName            = "anthropic"
	defaultBaseURL          = "https://api.anthropic.com"
	defaultTimeout          = 60 * time.Second
	defaultMaxTokens        = 4000
	defaultAnthropicVersion = "2023-06-01"
)

// Client calls the Anthropic Messages API with retry, metrics, and
// call logging.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	retryConfig llmhttp.RetryConfig
	logger      llmhttp.Logger
	metrics     llmhttp.Metrics
	pricing     llmhttp.Pricing
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.client.Timeout = timeout }
}

func WithRetryConfig(config llmhttp.RetryConfig) Option {
	return func(c *Client) { c.retryConfig = config }
}

func WithLogger(logger llmhttp.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(metrics llmhttp.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: defaultTimeout},
		retryConfig: llmhttp.DefaultRetryConfig(),
		logger:      llmhttp.NewHCLogger(nil),
		metrics:     llmhttp.NewDefaultMetrics(),
		pricing:     llmhttp.NewDefaultPricing(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

// Generate sends one user message and returns the concatenated text
// blocks of the reply.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := MessagesRequest{
		Model:     c.model,
		System:    systemPrompt,
		Messages:  []Message{{Role: "user", Content: userPrompt}},
		MaxTokens: defaultMaxTokens,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	c.logger.LogRequest(ctx, llmhttp.RequestLog{
		Provider:    providerName,
		Model:       c.model,
		Timestamp:   time.Now(),
		PromptChars: len(systemPrompt) + len(userPrompt),
		APIKey:      c.apiKey,
	})
	c.metrics.RecordRequest(providerName, c.model)

	start := time.Now()
	url := c.baseURL + "/v1/messages"

	var body []byte
	var statusCode int
	err = llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if reqErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: reqErr.Error(), Provider: providerName}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", defaultAnthropicVersion)

		resp, callErr := c.client.Do(req)
		if callErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeTimeout, Message: callErr.Error(), Retryable: true, Provider: providerName}
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: readErr.Error(), Provider: providerName}
		}
		if resp.StatusCode >= 400 {
			return c.handleErrorResponse(resp.StatusCode, respBody)
		}
		body = respBody
		return nil
	}, c.retryConfig)
	duration := time.Since(start)

	if err != nil {
		c.logCallError(ctx, err, duration, statusCode)
		return "", err
	}

	var messagesResp MessagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(messagesResp.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty response content")
	}

	var textParts []string
	for _, block := range messagesResp.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}
	text := strings.Join(textParts, "")

	tokensIn := messagesResp.Usage.InputTokens
	tokensOut := messagesResp.Usage.OutputTokens
	cost := c.pricing.GetCost(providerName, c.model, tokensIn, tokensOut)
	c.metrics.RecordDuration(providerName, c.model, duration)
	c.metrics.RecordTokens(providerName, c.model, tokensIn, tokensOut)
	c.metrics.RecordCost(providerName, c.model, cost)
	c.logger.LogResponse(ctx, llmhttp.ResponseLog{
		Provider:     providerName,
		Model:        messagesResp.Model,
		Timestamp:    time.Now(),
		Duration:     duration,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		Cost:         cost,
		StatusCode:   statusCode,
		FinishReason: messagesResp.StopReason,
	})

	return text, nil
}

// handleErrorResponse maps HTTP status codes to typed errors.
// 529 is Anthropic's overloaded status, treated like 503.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llmhttp.Error{Type: llmhttp.ErrTypeAuthentication, Message: message, StatusCode: statusCode, Provider: providerName}
	case http.StatusTooManyRequests:
		return &llmhttp.Error{Type: llmhttp.ErrTypeRateLimit, Message: message, StatusCode: statusCode, Retryable: true, Provider: providerName}
	case http.StatusBadRequest:
		return &llmhttp.Error{Type: llmhttp.ErrTypeInvalidRequest, Message: message, StatusCode: statusCode, Provider: providerName}
	case http.StatusNotFound:
		return &llmhttp.Error{Type: llmhttp.ErrTypeModelNotFound, Message: message, StatusCode: statusCode, Provider: providerName}
	case 529, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return &llmhttp.Error{Type: llmhttp.ErrTypeServiceUnavailable, Message: message, StatusCode: statusCode, Retryable: true, Provider: providerName}
	default:
		return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: message, StatusCode: statusCode, Provider: providerName}
	}
}

func (c *Client) logCallError(ctx context.Context, err error, duration time.Duration, statusCode int) {
	errType := llmhttp.ErrTypeUnknown
	retryable := false
	if httpErr, ok := err.(*llmhttp.Error); ok {
		errType = httpErr.Type
		retryable = httpErr.Retryable
		statusCode = httpErr.StatusCode
	}
	c.metrics.RecordError(providerName, c.model, errType)
	c.logger.LogError(ctx, llmhttp.ErrorLog{
		Provider:   providerName,
		Model:      c.model,
		Timestamp:  time.Now(),
		Duration:   duration,
		Error:      err,
		ErrorType:  errType,
		StatusCode: statusCode,
		Retryable:  retryable,
	})
}
