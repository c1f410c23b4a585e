package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider embeds texts via OpenAI's embeddings endpoint.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider builds a Provider backed by the real OpenAI SDK.
// baseURL overrides the default endpoint when set (used for
// OpenAI-compatible gateways).
func NewOpenAIProvider(apiKey, baseURL, model string, dimension int) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed calls the embeddings endpoint once for the whole batch, preserving
// input order via each returned item's Index field.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([]Vector, len(texts))
	for _, item := range resp.Data {
		vec := make(Vector, len(item.Embedding))
		for i, f := range item.Embedding {
			vec[i] = float32(f)
		}
		if int(item.Index) < len(out) {
			out[item.Index] = vec
		}
	}
	return out, nil
}
