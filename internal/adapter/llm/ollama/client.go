// Package ollama is a client for a local Ollama server. No API key and
// no cost accounting; latency and token metrics are still recorded.
package ollama

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
	providerName   = "ollama"
	defaultBaseURL = "http://localhost:11434"

	// Local models are slow on large prompts.
	defaultTimeout = 5 * time.Minute
)

type Client struct {
	model       string
	baseURL     string
	client      *http.Client
	retryConfig llmhttp.RetryConfig
	logger      llmhttp.Logger
	metrics     llmhttp.Metrics
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

func NewClient(model string, opts ...Option) *Client {
	c := &Client{
		model:       model,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: defaultTimeout},
		retryConfig: llmhttp.DefaultRetryConfig(),
		logger:      llmhttp.NewHCLogger(nil),
		metrics:     llmhttp.NewDefaultMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream:  false,
		Options: map[string]any{"temperature": 0.3},
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
	})
	c.metrics.RecordRequest(providerName, c.model)

	url := c.baseURL + "/api/chat"
	start := time.Now()

	var body []byte
	var statusCode int
	err = llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if reqErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: reqErr.Error(), Provider: providerName}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, callErr := c.client.Do(req)
		if callErr != nil {
			// Connection refused usually means the server is not running;
			// retrying will not help.
			return &llmhttp.Error{Type: llmhttp.ErrTypeServiceUnavailable, Message: callErr.Error(), Provider: providerName}
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

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if chatResp.Message.Content == "" {
		return "", fmt.Errorf("ollama: empty response content")
	}

	c.metrics.RecordDuration(providerName, c.model, duration)
	c.metrics.RecordTokens(providerName, c.model, chatResp.PromptEvalCount, chatResp.EvalCount)
	c.logger.LogResponse(ctx, llmhttp.ResponseLog{
		Provider:     providerName,
		Model:        chatResp.Model,
		Timestamp:    time.Now(),
		Duration:     duration,
		TokensIn:     chatResp.PromptEvalCount,
		TokensOut:    chatResp.EvalCount,
		StatusCode:   statusCode,
		FinishReason: chatResp.DoneReason,
	})

	return chatResp.Message.Content, nil
}

func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}

	switch statusCode {
	case http.StatusNotFound:
		return &llmhttp.Error{Type: llmhttp.ErrTypeModelNotFound, Message: message, StatusCode: statusCode, Provider: providerName}
	case http.StatusBadRequest:
		return &llmhttp.Error{Type: llmhttp.ErrTypeInvalidRequest, Message: message, StatusCode: statusCode, Provider: providerName}
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
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
