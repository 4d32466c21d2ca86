// Package embedding provides clients for text embedding backends used by
// the semantic index. Both clients satisfy semantic.Embedder.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 30 * time.Second

// ServiceClient talks to a local embedding service that fronts a sentence
// transformer model. The service exposes POST /embed and GET /health.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
	dimension  int
}

// NewServiceClient creates a client for the embedding service at baseURL,
// e.g. "http://localhost:8100". dimension is the vector size the configured
// model produces.
func NewServiceClient(baseURL string, dimension int) *ServiceClient {
	return &ServiceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		dimension:  dimension,
	}
}

// WithTimeout overrides the request timeout.
func (c *ServiceClient) WithTimeout(timeout time.Duration) *ServiceClient {
	c.httpClient.Timeout = timeout
	return c
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Model   string      `json:"model"`
	Vectors [][]float32 `json:"vectors"`
	Dim     int         `json:"dim"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Dimension returns the configured vector size.
func (c *ServiceClient) Dimension() int { return c.dimension }

// Embed returns one vector per input text, in input order.
func (c *ServiceClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(msg))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(decoded.Vectors), len(texts))
	}

	return decoded.Vectors, nil
}

// Available reports whether the service is reachable and the model loaded.
func (c *ServiceClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}
