// Package vectorstore defines the storage contract the reconciler and
// retriever consume: checksum lookup, atomic two-phase move,
// orphan/stranded detection, and hybrid (vector + BM25) search. The
// concrete backend lives in internal/vectorstore/postgres; an in-memory
// fake lives alongside this file for tests.
package vectorstore

import "context"

// fetchChunksByChecksumsBatchSize bounds how many checksums are sent in a
// single fetchChunksByChecksums query, to stay under URL/query limits.
const fetchChunksByChecksumsBatchSize = 50

// orphanScanPageSize bounds how many rows FindOrphanedChunkIds fetches per
// page while scanning the repository scope. FindStrandedChunkIds does not
// paginate.
const orphanScanPageSize = 1000

// Row is one persisted chunk.
type Row struct {
	ID             int64
	FilePath       string
	ChunkID        int
	ChunkTitle     string
	Content        string
	ContextualText string
	Embedding      []float32
	Checksum       string
	SourceType     string
	EntityType     string
	StartLine      int
	EndLine        int
	GithubURL      string
	DocsURL        string
	FinalURL       string
}

// ExistingChunkInfo is the store's answer to "what rows currently have
// this checksum": enough to classify and re-target a row without
// re-fetching its full content.
type ExistingChunkInfo struct {
	ID         int64
	FilePath   string
	ChunkID    int
	SourceType string
	GithubURL  string
	Checksum   string
}

// Move is one atomic relocation: row ID to its new location fields. The
// row's embedding and content are preserved; only location fields change.
type Move struct {
	ID            int64
	NewFilePath   string
	NewChunkID    int
	NewSourceType string
	NewGithubURL  string
}

// SearchResult is one hit from either search path, carrying enough ranking
// signal for the retriever's fusion rule (§4.9).
type SearchResult struct {
	Row        Row
	Similarity float64 // cosine similarity, from matchDocuments
	HasVector  bool
	BM25Rank   float64 // ts_rank_cd score, from searchDocumentsFullText
	HasBM25    bool
	VectorPos  int // 0-based rank within the vector result list
	BM25Pos    int // 0-based rank within the BM25 result list
}

// Store is the full operation set from spec.md §4.7.
type Store interface {
	// VerifyConnection issues a trivial read. A missing table is a
	// warning the caller logs, not a fatal error; any other failure is
	// fatal.
	VerifyConnection(ctx context.Context) error

	// FetchChunksByChecksums returns checksum -> existing rows for the
	// given checksum set, batched internally at
	// fetchChunksByChecksumsBatchSize per query.
	FetchChunksByChecksums(ctx context.Context, checksums []string) (map[string][]ExistingChunkInfo, error)

	// UpsertChunks upserts rows on conflict (filepath, chunkId),
	// replacing every non-identity column.
	UpsertChunks(ctx context.Context, rows []Row) error

	// MoveChunksAtomic performs the two-phase move documented in
	// spec.md §4.7: stage to a "__moving__"-prefixed filepath, then land
	// at the final location if unoccupied (or occupied by the same row),
	// else leave the row stranded at the staged location. Duplicate
	// target keys within one call keep the first request and strand the
	// rest.
	MoveChunksAtomic(ctx context.Context, moves []Move) error

	// DeleteChunksByIDs hard-deletes the given rows.
	DeleteChunksByIDs(ctx context.Context, ids []int64) error

	// FindOrphanedChunkIds scans the table (paginated at
	// orphanScanPageSize rows/page) for rows within repoBaseUrls' scope
	// whose normalized githubUrl is absent from activeGithubUrls OR
	// whose checksum is absent from activeChecksums. Returns no rows
	// (and performs no scan) if repoBaseUrls is empty.
	FindOrphanedChunkIds(ctx context.Context, activeChecksums map[string]bool, repoBaseUrls []string, activeGithubUrls map[string]bool) ([]int64, error)

	// FindStrandedChunkIds returns rows whose filepath carries the
	// "__moving__" prefix and whose checksum is absent from
	// activeChecksums, optionally scoped to repoIdentifiers
	// ("owner/repo" parsed from githubUrl).
	FindStrandedChunkIds(ctx context.Context, activeChecksums map[string]bool, repoIdentifiers []string) ([]int64, error)

	// MatchDocuments returns the cosine-similarity top-k rows with
	// similarity >= threshold.
	MatchDocuments(ctx context.Context, embedding []float32, k int, threshold float64) ([]SearchResult, error)

	// SearchDocumentsFullText returns the BM25 top-k rows for query.
	SearchDocumentsFullText(ctx context.Context, query string, k int) ([]SearchResult, error)
}
