package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-run/mimir/internal/chunker"
	"github.com/mimir-run/mimir/internal/fingerprint"
	"github.com/mimir-run/mimir/internal/llm/chat"
	"github.com/mimir-run/mimir/internal/llm/embedding"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

type fakeCounter struct{}

func (fakeCounter) Count(s string) int { return len(s) }

type fakeGenerator struct{}

func (fakeGenerator) GenerateEntityContexts(ctx context.Context, entities []chunker.Entity, fileContent, filePath string, counter chat.TokenEstimator) ([]string, error) {
	out := make([]string, len(entities))
	for i := range entities {
		out[i] = "ctx"
	}
	return out, nil
}

func (fakeGenerator) GenerateFileChunkContexts(ctx context.Context, chunks []chunker.Chunk, fileContent string) ([]string, error) {
	out := make([]string, len(chunks))
	for i := range chunks {
		out[i] = "ctx"
	}
	return out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i := range texts {
		out[i] = embedding.Vector{float32(len(texts[i]))}
	}
	return out, nil
}

func newTestDesired(filePath, content string) DesiredChunk {
	return DesiredChunk{
		Checksum:    fingerprint.Checksum(content),
		FilePath:    filePath,
		ChunkID:     0,
		ChunkTitle:  "Title",
		Content:     content,
		FileContent: content,
		SourceType:  fingerprint.SourceDoc,
		GithubURL:   "https://github.com/o/r/blob/main/" + filePath,
	}
}

func TestRunInsertsNewChunks(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	stats, err := Run(context.Background(), store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{},
		[]DesiredChunk{newTestDesired("a.md", "hello world")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UpsertedChunks)
	assert.Equal(t, 0, stats.MovedChunks)
	assert.Equal(t, 0, stats.UnchangedChunks)
}

func TestRunSecondIdenticalRunIsUnchanged(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()
	desired := []DesiredChunk{newTestDesired("a.md", "hello world")}

	_, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, desired, nil)
	require.NoError(t, err)

	stats, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, desired, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnchangedChunks)
	assert.Equal(t, 0, stats.UpsertedChunks)
	assert.Equal(t, 0, stats.MovedChunks)
}

func TestRunFileRenameIsAPureMove(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()

	_, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{},
		[]DesiredChunk{newTestDesired("a.md", "same content")}, nil)
	require.NoError(t, err)

	stats, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{},
		[]DesiredChunk{newTestDesired("docs/a.md", "same content")}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MovedChunks)
	assert.Equal(t, 0, stats.UpsertedChunks)
	assert.Equal(t, 0, stats.DeletedChunks)
}

func TestRunDeletesOrphansWithinScope(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()

	d := newTestDesired("a.md", "gone soon")
	_, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, []DesiredChunk{d}, []RepoScope{
		{BaseURL: "https://github.com/o/r/blob/main/", Identifier: "o/r"},
	})
	require.NoError(t, err)

	stats, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, nil, []RepoScope{
		{BaseURL: "https://github.com/o/r/blob/main/", Identifier: "o/r"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeletedChunks)
}

func TestRunSkipsDeletionWithEmptyScope(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()

	d := newTestDesired("a.md", "stays forever")
	_, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, []DesiredChunk{d}, nil)
	require.NoError(t, err)

	stats, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DeletedChunks, "no repo scope must never delete rows")
}

func TestRunDuplicateTargetLocationsDropsTheSecond(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()

	dup := newTestDesired("a.md", "content one")
	dup2 := newTestDesired("a.md", "content one")
	dup2.Checksum = dup.Checksum

	stats, err := Run(ctx, store, fakeGenerator{}, fakeEmbedder{}, fakeCounter{}, []DesiredChunk{dup, dup2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UpsertedChunks)
}
