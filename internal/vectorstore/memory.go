package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development. It
// implements the full checksum/move/orphan/search contract with plain maps
// and a linear-scan cosine/BM25 search, trading scale for simplicity.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[int64]Row
	nextID  int64
	byKey   map[locationKey]int64 // (filepath, chunkId) -> row ID, the unique constraint conexus's schema enforces
}

type locationKey struct {
	filePath string
	chunkID  int
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[int64]Row),
		byKey:  make(map[locationKey]int64),
		nextID: 1,
	}
}

func (m *MemoryStore) VerifyConnection(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) FetchChunksByChecksums(ctx context.Context, checksums []string) (map[string][]ExistingChunkInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(checksums))
	for _, c := range checksums {
		want[c] = true
	}

	out := make(map[string][]ExistingChunkInfo)
	for _, row := range m.rows {
		if !want[row.Checksum] {
			continue
		}
		out[row.Checksum] = append(out[row.Checksum], ExistingChunkInfo{
			ID:         row.ID,
			FilePath:   row.FilePath,
			ChunkID:    row.ChunkID,
			SourceType: row.SourceType,
			GithubURL:  row.GithubURL,
			Checksum:   row.Checksum,
		})
	}
	return out, nil
}

func (m *MemoryStore) UpsertChunks(ctx context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		key := locationKey{row.FilePath, row.ChunkID}
		if existingID, ok := m.byKey[key]; ok {
			row.ID = existingID
		} else {
			row.ID = m.nextID
			m.nextID++
			m.byKey[key] = row.ID
		}
		m.rows[row.ID] = row
	}
	return nil
}

// MoveChunksAtomic performs the same two-phase move the postgres backend
// does (internal/vectorstore/postgres.Store.MoveChunksAtomic): stage every
// row to a collision-free "__moving__"-prefixed location first, then land
// each at its final (filepath, chunkId); a row whose target is still
// occupied by a different id after staging is left at its staged location
// rather than aborting the batch. Staging first is what makes a cyclic swap
// (alpha<->beta) land correctly: by the time phase two runs, every row's
// old location has already been vacated, so neither swap partner can find
// its target "occupied" by the other and get stranded.
func (m *MemoryStore) MoveChunksAtomic(ctx context.Context, moves []Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[int64]Row, len(moves))
	for i, mv := range moves {
		row, ok := m.rows[mv.ID]
		if !ok {
			continue
		}
		delete(m.byKey, locationKey{row.FilePath, row.ChunkID})

		stagedKey := locationKey{"__moving__" + mv.NewFilePath, mv.NewChunkID*1000000 + i}
		row.FilePath = stagedKey.filePath
		row.ChunkID = stagedKey.chunkID
		m.byKey[stagedKey] = row.ID
		m.rows[row.ID] = row
		staged[row.ID] = row
	}

	for _, mv := range moves {
		row, ok := staged[mv.ID]
		if !ok {
			continue
		}
		targetKey := locationKey{mv.NewFilePath, mv.NewChunkID}
		if occupantID, taken := m.byKey[targetKey]; taken && occupantID != mv.ID {
			continue
		}

		delete(m.byKey, locationKey{row.FilePath, row.ChunkID})
		row.FilePath = mv.NewFilePath
		row.ChunkID = mv.NewChunkID
		row.SourceType = mv.NewSourceType
		row.GithubURL = mv.NewGithubURL
		m.byKey[targetKey] = row.ID
		m.rows[row.ID] = row
	}
	return nil
}

func (m *MemoryStore) DeleteChunksByIDs(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		row, ok := m.rows[id]
		if !ok {
			continue
		}
		delete(m.byKey, locationKey{row.FilePath, row.ChunkID})
		delete(m.rows, id)
	}
	return nil
}

func (m *MemoryStore) FindOrphanedChunkIds(ctx context.Context, activeChecksums map[string]bool, repoBaseUrls []string, activeGithubUrls map[string]bool) ([]int64, error) {
	if len(repoBaseUrls) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []int64
	for _, row := range m.rows {
		if !inScope(row.GithubURL, repoBaseUrls) {
			continue
		}
		if !activeGithubUrls[row.GithubURL] || !activeChecksums[row.Checksum] {
			out = append(out, row.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func inScope(githubURL string, repoBaseUrls []string) bool {
	for _, base := range repoBaseUrls {
		if strings.HasPrefix(githubURL, base) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) FindStrandedChunkIds(ctx context.Context, activeChecksums map[string]bool, repoIdentifiers []string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []int64
	for _, row := range m.rows {
		if !strings.HasPrefix(row.FilePath, "__moving__") {
			continue
		}
		if activeChecksums[row.Checksum] {
			continue
		}
		if len(repoIdentifiers) > 0 && !matchesAnyIdentifier(row.GithubURL, repoIdentifiers) {
			continue
		}
		out = append(out, row.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func matchesAnyIdentifier(githubURL string, identifiers []string) bool {
	for _, id := range identifiers {
		if strings.Contains(githubURL, id) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) MatchDocuments(ctx context.Context, embedding []float32, k int, threshold float64) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, row := range m.rows {
		if len(row.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(embedding, row.Embedding)
		if sim < threshold {
			continue
		}
		results = append(results, SearchResult{Row: row, Similarity: sim, HasVector: true})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].VectorPos = i
	}
	return results, nil
}

func (m *MemoryStore) SearchDocumentsFullText(ctx context.Context, query string, k int) ([]SearchResult, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, row := range m.rows {
		rank := bm25ish(row.ContextualText+" "+row.Content, terms)
		if rank <= 0 {
			continue
		}
		results = append(results, SearchResult{Row: row, BM25Rank: rank, HasBM25: true})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].BM25Rank > results[j].BM25Rank })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].BM25Pos = i
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func tokenizeQuery(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// bm25ish is a term-frequency approximation, not a true BM25/ts_rank_cd
// score: good enough for the in-memory fake's ranking comparisons in tests,
// where the real scoring formula lives in the postgres backend's
// match_docs_bm25 stored function.
func bm25ish(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, term := range terms {
		score += float64(strings.Count(lower, term))
	}
	return score
}

var _ Store = (*MemoryStore)(nil)
