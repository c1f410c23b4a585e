package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleProvider embeds texts via Google's generative-language embedding
// models (e.g. gemini-embedding-001).
type GoogleProvider struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGoogleProvider builds a Provider backed by the real google.golang.org/genai SDK.
func NewGoogleProvider(ctx context.Context, apiKey, model string, dimension int) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google genai client: %w", err)
	}
	return &GoogleProvider{client: client, model: model, dimension: dimension}, nil
}

func (p *GoogleProvider) Dimension() int { return p.dimension }

// Embed issues one EmbedContent call per input text; the genai batch
// embedding surface does not guarantee order preservation across providers,
// so sequential per-item calls keep this provider's output order exact and
// simple, at the cost of more round trips than a true batch endpoint.
func (p *GoogleProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		resp, err := p.client.Models.EmbedContent(ctx, p.model, genai.Text(t), nil)
		if err != nil {
			return nil, fmt.Errorf("google embed content: %w", err)
		}
		if len(resp.Embeddings) == 0 {
			return nil, fmt.Errorf("google embed content: empty response for input %d", i)
		}
		values := resp.Embeddings[0].Values
		vec := make(Vector, len(values))
		for j, f := range values {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}
