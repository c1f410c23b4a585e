package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// GoogleProvider completes chat requests via Gemini, using ResponseSchema
// to force the structured answer shape.
type GoogleProvider struct {
	client *genai.Client
	model  string
}

// NewGoogleProvider builds a Provider backed by the real
// google.golang.org/genai SDK.
func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google genai client: %w", err)
	}
	return &GoogleProvider{client: client, model: model}, nil
}

var structuredAnswerResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"answer": {Type: genai.TypeString},
		"sources": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"filePath":   {Type: genai.TypeString},
					"chunkTitle": {Type: genai.TypeString},
				},
			},
		},
	},
	Required: []string{"answer", "sources"},
}

func (p *GoogleProvider) promptContent(req CompletionRequest) string {
	prompt := req.UserPrompt
	if block := buildContextBlock(req.ContextChunks); block != "" {
		prompt = "Context:\n" + block + "\n\n" + prompt
	}
	return prompt
}

func (p *GoogleProvider) baseConfig(systemPrompt string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
	cfg := p.baseConfig(req.SystemPrompt)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = structuredAnswerResponseSchema

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(p.promptContent(req)), cfg)
	if err != nil {
		return StructuredAnswer{}, fmt.Errorf("google generate content: %w", err)
	}

	var answer StructuredAnswer
	if err := json.Unmarshal([]byte(resp.Text()), &answer); err != nil {
		return StructuredAnswer{}, fmt.Errorf("google generate content: decoding structured response: %w", err)
	}
	return answer, nil
}

func (p *GoogleProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StructuredAnswer, <-chan error) {
	out := make(chan StructuredAnswer)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		cfg := p.baseConfig(req.SystemPrompt)
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = structuredAnswerResponseSchema

		var accumulated string
		for chunk, err := range p.client.Models.GenerateContentStream(ctx, p.model, genai.Text(p.promptContent(req)), cfg) {
			if err != nil {
				errCh <- fmt.Errorf("google generate content stream: %w", err)
				return
			}
			accumulated += chunk.Text()

			var partial StructuredAnswer
			if jsonErr := json.Unmarshal([]byte(accumulated), &partial); jsonErr != nil {
				partial.Answer = accumulated
			}
			select {
			case out <- partial:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

func (p *GoogleProvider) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	cfg := p.baseConfig(req.SystemPrompt)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.UserPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("google generate content: %w", err)
	}
	return resp.Text(), nil
}
