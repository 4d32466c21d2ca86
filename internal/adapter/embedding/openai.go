package embedding

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// openaiDimensions maps embedding models to their vector sizes.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIClient produces embeddings through the OpenAI embeddings API.
type OpenAIClient struct {
	client    *goopenai.Client
	model     string
	hasAPIKey bool
}

// NewOpenAIClient creates an embedding client for the given model. An empty
// model defaults to text-embedding-3-small.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIClient{
		client:    goopenai.NewClient(apiKey),
		model:     model,
		hasAPIKey: apiKey != "",
	}
}

// Dimension returns the vector size for the configured model, or 0 when the
// model is unknown.
func (c *OpenAIClient) Dimension() int { return openaiDimensions[c.model] }

// Embed returns one vector per input text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned embedding with index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// Available reports whether the client holds credentials. The API is not
// probed; a bad key surfaces on the first Embed call.
func (c *OpenAIClient) Available(ctx context.Context) bool {
	return c.hasAPIKey
}
