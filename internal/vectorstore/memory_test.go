package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertThenFetchByChecksum(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	err := m.UpsertChunks(ctx, []Row{
		{FilePath: "docs/a.md", ChunkID: 0, Checksum: "cs-a", SourceType: "doc"},
		{FilePath: "docs/b.md", ChunkID: 0, Checksum: "cs-b", SourceType: "doc"},
	})
	require.NoError(t, err)

	found, err := m.FetchChunksByChecksums(ctx, []string{"cs-a", "missing"})
	require.NoError(t, err)
	require.Len(t, found["cs-a"], 1)
	assert.Equal(t, "docs/a.md", found["cs-a"][0].FilePath)
	assert.Empty(t, found["missing"])
}

func TestMemoryStoreUpsertIsIdempotentOnLocationKey(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertChunks(ctx, []Row{{FilePath: "a.go", ChunkID: 0, Checksum: "v1"}}))
	require.NoError(t, m.UpsertChunks(ctx, []Row{{FilePath: "a.go", ChunkID: 0, Checksum: "v2"}}))

	found, err := m.FetchChunksByChecksums(ctx, []string{"v2"})
	require.NoError(t, err)
	require.Len(t, found["v2"], 1)

	stale, err := m.FetchChunksByChecksums(ctx, []string{"v1"})
	require.NoError(t, err)
	assert.Empty(t, stale["v1"])
	assert.Len(t, m.rows, 1)
}

func TestMemoryStoreMoveChunksAtomicRelocatesRow(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{{FilePath: "old.go", ChunkID: 0, Checksum: "cs"}}))

	var id int64
	for rowID := range m.rows {
		id = rowID
	}

	err := m.MoveChunksAtomic(ctx, []Move{{ID: id, NewFilePath: "new.go", NewChunkID: 0, NewSourceType: "code"}})
	require.NoError(t, err)

	row := m.rows[id]
	assert.Equal(t, "new.go", row.FilePath)
	assert.Equal(t, "code", row.SourceType)
}

func TestMemoryStoreMoveChunksAtomicStrandsOnCollision(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "src.go", ChunkID: 0, Checksum: "a"},
		{FilePath: "dst.go", ChunkID: 0, Checksum: "b"},
	}))

	var srcID int64
	for id, row := range m.rows {
		if row.FilePath == "src.go" {
			srcID = id
		}
	}

	err := m.MoveChunksAtomic(ctx, []Move{{ID: srcID, NewFilePath: "dst.go", NewChunkID: 0}})
	require.NoError(t, err)

	row := m.rows[srcID]
	assert.Contains(t, row.FilePath, "__moving__")
}

func TestMemoryStoreMoveChunksAtomicLandsCyclicSwap(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "alpha.go", ChunkID: 0, Checksum: "a"},
		{FilePath: "beta.go", ChunkID: 0, Checksum: "b"},
	}))

	var alphaID, betaID int64
	for id, row := range m.rows {
		switch row.FilePath {
		case "alpha.go":
			alphaID = id
		case "beta.go":
			betaID = id
		}
	}

	err := m.MoveChunksAtomic(ctx, []Move{
		{ID: alphaID, NewFilePath: "beta.go", NewChunkID: 0},
		{ID: betaID, NewFilePath: "alpha.go", NewChunkID: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, "beta.go", m.rows[alphaID].FilePath)
	assert.Equal(t, "alpha.go", m.rows[betaID].FilePath)
}

func TestMemoryStoreDeleteChunksByIDs(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{{FilePath: "a.go", ChunkID: 0, Checksum: "cs"}}))

	var id int64
	for rowID := range m.rows {
		id = rowID
	}

	require.NoError(t, m.DeleteChunksByIDs(ctx, []int64{id}))
	assert.Empty(t, m.rows)
}

func TestMemoryStoreFindOrphanedChunkIdsRequiresScope(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "a.go", ChunkID: 0, Checksum: "cs", GithubURL: "https://github.com/o/r/blob/main/a.go"},
	}))

	ids, err := m.FindOrphanedChunkIds(ctx, map[string]bool{"cs": true}, nil, map[string]bool{})
	require.NoError(t, err)
	assert.Empty(t, ids, "empty repoBaseUrls must perform no scan")

	ids, err = m.FindOrphanedChunkIds(ctx, map[string]bool{}, []string{"https://github.com/o/r"}, map[string]bool{})
	require.NoError(t, err)
	assert.NotEmpty(t, ids, "row absent from activeChecksums is orphaned")
}

func TestMemoryStoreFindStrandedChunkIds(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "__moving__a.go", ChunkID: 0, Checksum: "stale"},
		{FilePath: "b.go", ChunkID: 0, Checksum: "fresh"},
	}))

	ids, err := m.FindStrandedChunkIds(ctx, map[string]bool{"fresh": true}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestMemoryStoreMatchDocumentsRanksBySimilarity(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "a", ChunkID: 0, Checksum: "a", Embedding: []float32{1, 0}},
		{FilePath: "b", ChunkID: 0, Checksum: "b", Embedding: []float32{0, 1}},
	}))

	results, err := m.MatchDocuments(ctx, []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Row.FilePath)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestMemoryStoreMatchDocumentsAppliesThreshold(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "a", ChunkID: 0, Checksum: "a", Embedding: []float32{1, 0}},
		{FilePath: "b", ChunkID: 0, Checksum: "b", Embedding: []float32{0, 1}},
	}))

	results, err := m.MatchDocuments(ctx, []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Row.FilePath)
}

func TestMemoryStoreSearchDocumentsFullText(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertChunks(ctx, []Row{
		{FilePath: "a", ChunkID: 0, Checksum: "a", Content: "the quick brown fox"},
		{FilePath: "b", ChunkID: 0, Checksum: "b", Content: "a slow turtle"},
	}))

	results, err := m.SearchDocumentsFullText(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Row.FilePath)
}

func TestMemoryStoreSearchDocumentsFullTextEmptyQuery(t *testing.T) {
	m := NewMemoryStore()
	results, err := m.SearchDocumentsFullText(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
