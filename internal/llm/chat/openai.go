package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIProvider completes chat requests via OpenAI's chat completions
// endpoint, using response_format json_schema for structured answers.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a Provider backed by the real OpenAI SDK.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

var structuredAnswerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{"type": "string"},
		"sources": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filePath":   map[string]any{"type": "string"},
					"chunkTitle": map[string]any{"type": "string"},
				},
				"required": []string{"filePath", "chunkTitle"},
			},
		},
	},
	"required": []string{"answer", "sources"},
}

func (p *OpenAIProvider) baseMessages(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.SystemPrompt),
	}
	if block := buildContextBlock(req.ContextChunks); block != "" {
		msgs = append(msgs, openai.UserMessage("Context:\n"+block))
	}
	msgs = append(msgs, openai.UserMessage(req.UserPrompt))
	return msgs
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: p.baseMessages(req),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_answer",
					Schema: structuredAnswerSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return StructuredAnswer{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return StructuredAnswer{}, fmt.Errorf("openai chat completion: no choices returned")
	}

	var answer StructuredAnswer
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &answer); err != nil {
		return StructuredAnswer{}, fmt.Errorf("openai chat completion: decoding structured content: %w", err)
	}
	return answer, nil
}

func (p *OpenAIProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StructuredAnswer, <-chan error) {
	out := make(chan StructuredAnswer)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Model:    p.model,
			Messages: p.baseMessages(req),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   "structured_answer",
						Schema: structuredAnswerSchema,
					},
				},
			},
		}
		if req.MaxOutputTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var accumulated string
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			accumulated += chunk.Choices[0].Delta.Content

			var partial StructuredAnswer
			if err := json.Unmarshal([]byte(accumulated), &partial); err != nil {
				// Partial JSON mid-stream is expected; only the answer
				// field is surfaced incrementally via best-effort scanning.
				partial.Answer = accumulated
			}
			select {
			case out <- partial:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai chat stream: %w", err)
		}
	}()

	return out, errCh
}

func (p *OpenAIProvider) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai text completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai text completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
