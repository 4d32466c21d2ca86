package anthropic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
)

func fastRetry() llmhttp.RetryConfig {
	return llmhttp.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, defaultAnthropicVersion, r.Header.Get("anthropic-version"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "[{\"title\": \"ok\"}]"}],
			"model": "claude-haiku-4-5",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 100, "output_tokens": 20}
		}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "claude-haiku-4-5", WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	text, err := client.Generate(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, `[{"title": "ok"}]`, text)
}

func TestGenerate_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
			return
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "done"}], "usage": {}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "claude-haiku-4-5", WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	text, err := client.Generate(context.Background(), "s", "u")

	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_AuthenticationNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "bad key"}}`))
	}))
	defer server.Close()

	client := NewClient("bad-key", "claude-haiku-4-5", WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := client.Generate(context.Background(), "s", "u")

	require.Error(t, err)
	assert.True(t, errors.Is(err, &llmhttp.Error{Type: llmhttp.ErrTypeAuthentication}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_OverloadedIsRetryable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(529)
		w.Write([]byte(`{"type": "error", "error": {"type": "overloaded_error", "message": "overloaded"}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "claude-haiku-4-5", WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := client.Generate(context.Background(), "s", "u")

	require.Error(t, err)
	assert.True(t, errors.Is(err, &llmhttp.Error{Type: llmhttp.ErrTypeServiceUnavailable}))
	assert.Equal(t, int32(3), calls.Load()) // initial + 2 retries
}

func TestGenerate_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "usage": {}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "claude-haiku-4-5", WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := client.Generate(context.Background(), "s", "u")
	assert.Error(t, err)
}
