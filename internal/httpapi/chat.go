package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mimir-run/mimir/internal/answer"
	"github.com/mimir-run/mimir/internal/llm/chat"
	"github.com/mimir-run/mimir/internal/retrieve"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

// chatMessage is one OpenAI-compatible chat message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is POST /v1/chat/completions's request body. It is
// deliberately OpenAI-shaped but accepts mimir-specific retrieval knobs,
// per spec.md §6.
type chatRequest struct {
	Messages            []chatMessage `json:"messages"`
	Stream              bool          `json:"stream"`
	MatchCount          *int          `json:"matchCount"`
	SimilarityThreshold *float64      `json:"similarityThreshold"`
}

// chatResponse is an OpenAI-compatible chat.completion object. Sources is a
// mimir extension alongside the standard choices/message envelope, the same
// way OpenAI-compatible gateways attach vendor-specific metadata next to
// the standard fields rather than inside them.
type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`

	Sources []answer.SourceLink `json:"sources,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatStreamChunk is an OpenAI-compatible chat.completion.chunk object.
type chatStreamChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`

	Sources []answer.SourceLink `json:"sources,omitempty"`
}

type chatChunkChoice struct {
	Index        int       `json:"index"`
	Delta        chatDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type chatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

const chatCompletionModel = "mimir"

// ChatDeps bundles the collaborators ChatHandler needs to retrieve context
// and compose an answer.
type ChatDeps struct {
	Store             vectorstore.Store
	Embedder          retrieve.QueryEmbedder
	ChatClient        *chat.Client
	DefaultMatchCount int
	DefaultSimilarity float64
	HybridEnabled     bool
	BM25MatchCount    int
}

// ChatHandler serves POST /v1/chat/completions: retrieves context for the
// last user message, then composes an answer either as a single JSON
// response or as a server-sent-event stream, grounded on the streaming
// style the pack's agent-runtime servers use for token-by-token delivery.
func ChatHandler(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		question, systemPrompt := extractQuestion(req.Messages)
		if question == "" {
			writeError(w, http.StatusBadRequest, "messages must include a user message")
			return
		}

		opts := retrieve.Options{
			DesiredMatchCount:   deps.DefaultMatchCount,
			SimilarityThreshold: deps.DefaultSimilarity,
			HybridEnabled:       deps.HybridEnabled,
			BM25MatchCount:      deps.BM25MatchCount,
		}
		if req.MatchCount != nil {
			opts.DesiredMatchCount = *req.MatchCount
		}
		if req.SimilarityThreshold != nil {
			opts.SimilarityThreshold = *req.SimilarityThreshold
		}

		matches, err := retrieve.Retrieve(r.Context(), deps.Store, deps.Embedder, question, opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("retrieve: %v", err))
			return
		}

		if req.Stream {
			streamAnswer(w, r, deps.ChatClient, matches, question, systemPrompt)
			return
		}

		result, err := answer.Compose(r.Context(), deps.ChatClient, matches, question, systemPrompt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			ID:      completionID(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   chatCompletionModel,
			Choices: []chatChoice{{
				Index:        0,
				Message:      chatResponseMessage{Role: "assistant", Content: result.Text},
				FinishReason: "stop",
			}},
			Sources: result.Sources,
		})
	}
}

// completionID mints an OpenAI-style "chatcmpl-..." identifier.
func completionID() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return "chatcmpl-" + hex.EncodeToString(buf[:])
}

func extractQuestion(messages []chatMessage) (question, systemPrompt string) {
	for _, m := range messages {
		switch m.Role {
		case "system":
			systemPrompt = m.Content
		case "user":
			question = m.Content
		}
	}
	return question, systemPrompt
}

func streamAnswer(w http.ResponseWriter, r *http.Request, chatClient *chat.Client, matches []retrieve.Match, question, systemPrompt string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id := completionID()
	created := time.Now().Unix()
	writeChunk := func(index int, delta chatDelta, sources []answer.SourceLink, finishReason *string) bool {
		chunk := chatStreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   chatCompletionModel,
			Choices: []chatChunkChoice{{Index: index, Delta: delta, FinishReason: finishReason}},
			Sources: sources,
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		return true
	}

	deltas, errCh := answer.Stream(r.Context(), chatClient, matches, question, systemPrompt)
	first := true
	for d := range deltas {
		role := ""
		if first {
			role = "assistant"
			first = false
		}
		if !writeChunk(0, chatDelta{Role: role, Content: d.Text}, d.Sources, nil) {
			return
		}
	}
	<-errCh

	stopReason := "stop"
	writeChunk(0, chatDelta{}, nil, &stopReason)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
