// Package gemini is a hand-rolled client for the Google Gemini
// generateContent API. Gemini authenticates with an API key in the URL
// query string, so every error path runs through RedactURLSecrets
// before the message can reach a log line.
package gemini

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
	providerName          = "gemini"
	defaultBaseURL        = "https://generativelanguage.googleapis.com"
	defaultTimeout        = 60 * time.Second
	defaultMaxOutputToken = 4000
)

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

func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := GenerateContentRequest{
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: userPrompt}}},
		},
		GenerationConfig: &GenerationConfig{
			Temperature:     0.3,
			MaxOutputTokens: defaultMaxOutputToken,
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &Content{Parts: []Part{{Text: systemPrompt}}}
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

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	start := time.Now()
	var body []byte
	var statusCode int
	err = llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if reqErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: llmhttp.RedactURLSecrets(reqErr.Error()), Provider: providerName}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, callErr := c.client.Do(req)
		if callErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeTimeout, Message: llmhttp.RedactURLSecrets(callErr.Error()), Retryable: true, Provider: providerName}
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

	var genResp GenerateContentResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates in response")
	}

	var textParts []string
	for _, part := range genResp.Candidates[0].Content.Parts {
		textParts = append(textParts, part.Text)
	}
	text := strings.Join(textParts, "")

	tokensIn, tokensOut := 0, 0
	if genResp.UsageMetadata != nil {
		tokensIn = genResp.UsageMetadata.PromptTokenCount
		tokensOut = genResp.UsageMetadata.CandidatesTokenCount
	}
	cost := c.pricing.GetCost(providerName, c.model, tokensIn, tokensOut)
	c.metrics.RecordDuration(providerName, c.model, duration)
	c.metrics.RecordTokens(providerName, c.model, tokensIn, tokensOut)
	c.metrics.RecordCost(providerName, c.model, cost)
	c.logger.LogResponse(ctx, llmhttp.ResponseLog{
		Provider:     providerName,
		Model:        c.model,
		Timestamp:    time.Now(),
		Duration:     duration,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		Cost:         cost,
		StatusCode:   statusCode,
		FinishReason: genResp.Candidates[0].FinishReason,
	})

	return text, nil
}

func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = llmhttp.RedactURLSecrets(errResp.Error.Message)
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
