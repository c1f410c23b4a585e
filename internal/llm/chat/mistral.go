package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MistralProvider completes chat requests via Mistral's chat completions
// endpoint (OpenAI-wire-compatible). Like embedding.MistralProvider, this
// is the one documented net/http exception: no Mistral Go SDK exists in
// the retrieval pack. Structured output falls back to prompt-enforced JSON
// plus encoding/json decode, since Mistral's wire format lacks a portable
// JSON-schema response_format equivalent across all served models.
type MistralProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

const defaultMistralChatBaseURL = "https://api.mistral.ai/v1"

const mistralStructuredInstruction = "\n\nRespond with ONLY a single JSON object of the exact shape {\"answer\": string, \"sources\": [{\"filePath\": string, \"chunkTitle\": string}]}. No prose outside the JSON."

// NewMistralProvider builds a Provider backed by a plain HTTP client.
func NewMistralProvider(apiKey, baseURL, model string) *MistralProvider {
	if baseURL == "" {
		baseURL = defaultMistralChatBaseURL
	}
	return &MistralProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralChatRequest struct {
	Model    string           `json:"model"`
	Messages []mistralMessage `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`
}

type mistralChatResponse struct {
	Choices []struct {
		Message mistralMessage `json:"message"`
	} `json:"choices"`
}

func (p *MistralProvider) do(ctx context.Context, reqBody mistralChatRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("mistral chat: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mistral chat: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mistral chat: %w", err)
	}
	return resp, nil
}

func (p *MistralProvider) Complete(ctx context.Context, req CompletionRequest) (StructuredAnswer, error) {
	userContent := req.UserPrompt
	if block := buildContextBlock(req.ContextChunks); block != "" {
		userContent = "Context:\n" + block + "\n\n" + userContent
	}

	resp, err := p.do(ctx, mistralChatRequest{
		Model: p.model,
		Messages: []mistralMessage{
			{Role: "system", Content: req.SystemPrompt + mistralStructuredInstruction},
			{Role: "user", Content: userContent},
		},
	})
	if err != nil {
		return StructuredAnswer{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StructuredAnswer{}, fmt.Errorf("mistral chat: reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return StructuredAnswer{}, fmt.Errorf("mistral chat: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed mistralChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return StructuredAnswer{}, fmt.Errorf("mistral chat: decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return StructuredAnswer{}, fmt.Errorf("mistral chat: no choices returned")
	}

	var answer StructuredAnswer
	content := extractJSONObject(parsed.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return StructuredAnswer{}, fmt.Errorf("mistral chat: decoding structured content: %w", err)
	}
	return answer, nil
}

// extractJSONObject trims any leading/trailing prose around the first
// top-level JSON object in s, tolerating models that ignore the
// JSON-only instruction and wrap the object in a sentence or code fence.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

func (p *MistralProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StructuredAnswer, <-chan error) {
	out := make(chan StructuredAnswer)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		userContent := req.UserPrompt
		if block := buildContextBlock(req.ContextChunks); block != "" {
			userContent = "Context:\n" + block + "\n\n" + userContent
		}

		resp, err := p.do(ctx, mistralChatRequest{
			Model: p.model,
			Messages: []mistralMessage{
				{Role: "system", Content: req.SystemPrompt + mistralStructuredInstruction},
				{Role: "user", Content: userContent},
			},
			Stream: true,
		})
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		var accumulated string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				break
			}

			var sseChunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &sseChunk); err != nil {
				continue
			}
			if len(sseChunk.Choices) == 0 {
				continue
			}
			accumulated += sseChunk.Choices[0].Delta.Content

			var partial StructuredAnswer
			if jsonErr := json.Unmarshal([]byte(extractJSONObject(accumulated)), &partial); jsonErr != nil {
				partial.Answer = accumulated
			}
			select {
			case out <- partial:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("mistral chat stream: %w", err)
		}
	}()

	return out, errCh
}

func (p *MistralProvider) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	resp, err := p.do(ctx, mistralChatRequest{
		Model: p.model,
		Messages: []mistralMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("mistral text completion: reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("mistral text completion: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed mistralChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("mistral text completion: decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("mistral text completion: no choices returned")
	}
	return parsed.Choices[0].Message.Content, nil
}
