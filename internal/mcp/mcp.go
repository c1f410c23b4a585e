// Package mcp serves mimir's machine-callable retrieval route: a pure
// search endpoint returning retrieved chunks with no answer generation,
// for agent tools that want to do their own synthesis. Grounded on the
// teacher's internal/mcp context.search tool handler, trimmed from the
// teacher's full JSON-RPC tool-call protocol down to spec.md §6's single
// unauthenticated HTTP route.
package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/mimir-run/mimir/internal/retrieve"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

// Deps bundles the collaborators AskHandler needs to run a retrieval.
type Deps struct {
	Store             vectorstore.Store
	Embedder          retrieve.QueryEmbedder
	DefaultMatchCount int
	DefaultSimilarity float64
	HybridEnabled     bool
	BM25MatchCount    int
}

type askRequest struct {
	Question            string   `json:"question"`
	MatchCount          *int     `json:"matchCount"`
	SimilarityThreshold *float64 `json:"similarityThreshold"`
}

type matchResponse struct {
	ChunkTitle   string  `json:"chunkTitle"`
	ChunkContent string  `json:"chunkContent"`
	Similarity   float64 `json:"similarity"`
	GithubURL    string  `json:"githubUrl"`
	DocsURL      string  `json:"docsUrl"`
}

type askResponse struct {
	Status  string          `json:"status"`
	Count   int             `json:"count"`
	Matches []matchResponse `json:"matches"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Status: "error", Message: message})
}

// AskHandler serves POST /mcp/ask: retrieves matching chunks for a query
// and returns them directly, with no chat-model call. The route carries no
// auth requirement, per spec.md §6's "public MCP routes" exemption — any
// caller that can fetch from the vector store may use it.
func AskHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			writeError(w, http.StatusBadRequest, "question is required")
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

		matches, err := retrieve.Retrieve(r.Context(), deps.Store, deps.Embedder, req.Question, opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		out := make([]matchResponse, len(matches))
		for i, m := range matches {
			out[i] = matchResponse{
				ChunkTitle:   m.Row.ChunkTitle,
				ChunkContent: m.Row.Content,
				Similarity:   m.Similarity,
				GithubURL:    m.Row.GithubURL,
				DocsURL:      m.Row.DocsURL,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(askResponse{Status: "ok", Count: len(out), Matches: out})
	}
}
