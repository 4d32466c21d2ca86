// Package static provides a canned text generation provider for
// offline runs and tests. It returns an empty findings array for every
// prompt, so pipelines wired against it exercise the full optional
// stage path without network access.
package static

import "context"

const providerName = "static"

type Provider struct {
	model    string
	response string
}

// NewProvider returns a provider that always answers with an empty
// JSON array.
func NewProvider(model string) *Provider {
	return &Provider{model: model, response: "[]"}
}

// NewProviderWithResponse returns a provider answering with a fixed
// response, for tests that need specific payloads.
func NewProviderWithResponse(model, response string) *Provider {
	return &Provider{model: model, response: response}
}

func (p *Provider) Name() string  { return providerName }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.response, nil
}
