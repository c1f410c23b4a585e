package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-run/mimir/internal/llm/embedding"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

type fakeEmbedder struct {
	vector embedding.Vector
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) (embedding.Vector, error) {
	return f.vector, nil
}

func newSeededStore(t *testing.T, vector []float32) vectorstore.Store {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.UpsertChunks(context.Background(), []vectorstore.Row{
		{
			FilePath:   "docs/guide.md",
			ChunkID:    0,
			ChunkTitle: "Getting Started",
			Content:    "Run the installer to get started.",
			Checksum:   "c1",
			SourceType: "doc",
			Embedding:  vector,
			GithubURL:  "https://github.com/o/r/blob/main/docs/guide.md",
		},
	}))
	return store
}

func TestAskHandlerReturnsMatches(t *testing.T) {
	vector := []float32{1, 0, 0}
	deps := Deps{
		Store:             newSeededStore(t, vector),
		Embedder:          fakeEmbedder{vector: vector},
		DefaultMatchCount: 10,
		DefaultSimilarity: 0,
	}

	body := strings.NewReader(`{"question":"how do I install this"}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp/ask", body)
	rec := httptest.NewRecorder()

	AskHandler(deps)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp askResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "Getting Started", resp.Matches[0].ChunkTitle)
}

func TestAskHandlerRejectsEmptyQuery(t *testing.T) {
	deps := Deps{Store: vectorstore.NewMemoryStore(), Embedder: fakeEmbedder{}}

	req := httptest.NewRequest(http.MethodPost, "/mcp/ask", strings.NewReader(`{"question":""}`))
	rec := httptest.NewRecorder()

	AskHandler(deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskHandlerRejectsInvalidJSON(t *testing.T) {
	deps := Deps{Store: vectorstore.NewMemoryStore(), Embedder: fakeEmbedder{}}

	req := httptest.NewRequest(http.MethodPost, "/mcp/ask", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	AskHandler(deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
