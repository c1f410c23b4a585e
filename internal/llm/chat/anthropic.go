package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider completes chat requests via Anthropic's Messages API,
// using tool-use to force the structured answer schema. Anthropic supports
// chat only (spec.md §9 design note); there is no AnthropicProvider in the
// embedding package.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds a Provider backed by the real Anthropic SDK.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

var structuredAnswerTool = anthropic.ToolParam{
	Name:        "submit_structured_answer",
	Description: anthropic.String("Submit the final answer with its cited sources."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"answer": map[string]any{"type": "string"},
			"sources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filePath":   map[string]any{"type": "string"},
						"chunkTitle": map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

func (p *AnthropicProvider) userContent(req CompletionRequest) string {
	if block := buildContextBlock(req.ContextChunks); block != "" {
		return "Context:\n" + block + "\n\n" + req.UserPrompt
	}
	return req.UserPrompt
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
	maxTokens := int64(req.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.userContent(req))),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &structuredAnswerTool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: structuredAnswerTool.Name},
		},
	})
	if err != nil {
		return StructuredAnswer{}, fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		var answer StructuredAnswer
		if err := json.Unmarshal(block.Input, &answer); err != nil {
			return StructuredAnswer{}, fmt.Errorf("anthropic messages: decoding tool input: %w", err)
		}
		return answer, nil
	}
	return StructuredAnswer{}, fmt.Errorf("anthropic messages: no tool_use block in response")
}

func (p *AnthropicProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StructuredAnswer, <-chan error) {
	out := make(chan StructuredAnswer)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		maxTokens := int64(req.MaxOutputTokens)
		if maxTokens <= 0 {
			maxTokens = 1024
		}

		stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: maxTokens,
			System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(p.userContent(req))),
			},
			Tools: []anthropic.ToolUnionParam{{OfTool: &structuredAnswerTool}},
			ToolChoice: anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: structuredAnswerTool.Name},
			},
		})
		defer stream.Close()

		var accumulatedJSON string
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if partial, ok := delta.Delta.AsAny().(anthropic.InputJSONDelta); ok {
					accumulatedJSON += partial.PartialJSON

					var partialAnswer StructuredAnswer
					if err := json.Unmarshal([]byte(accumulatedJSON), &partialAnswer); err == nil {
						select {
						case out <- partialAnswer:
						case <-ctx.Done():
							errCh <- ctx.Err()
							return
						}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic messages stream: %w", err)
		}
	}()

	return out, errCh
}

func (p *AnthropicProvider) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	maxTokens := int64(req.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb []byte
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb = append(sb, []byte(block.Text)...)
		}
	}
	return string(sb), nil
}
