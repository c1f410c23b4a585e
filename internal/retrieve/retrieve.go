// Package retrieve implements hybrid retrieval: semantic (vector) search
// fused with BM25 full-text search over the vector store, merged into one
// ranked, truncated result list.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/mimir-run/mimir/internal/llm/embedding"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

// QueryEmbedder embeds a single query string for the semantic search leg.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (embedding.Vector, error)
}

// Options configures one retrieval call.
type Options struct {
	DesiredMatchCount   int
	SimilarityThreshold float64
	HybridEnabled       bool
	BM25MatchCount      int
}

// Match is one fused retrieval result.
type Match struct {
	Row        vectorstore.Row
	Similarity float64
	HasVector  bool
	BM25Rank   float64
	HasBM25    bool
	VectorPos  int
	BM25Pos    int
}

// Retrieve performs semantic search and, if hybrid is enabled, BM25
// search, merges the two result sets by (filepath, chunkId), sorts by
// similarity desc -> bm25Rank desc -> vector rank -> bm25 rank, and
// truncates to DesiredMatchCount. Returns an empty slice (never an error)
// if no source produced a row, so callers can render a fallback answer.
func Retrieve(ctx context.Context, store vectorstore.Store, embedder QueryEmbedder, query string, opts Options) ([]Match, error) {
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	vectorResults, err := store.MatchDocuments(ctx, vector, opts.DesiredMatchCount, opts.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieve: match documents: %w", err)
	}

	var bm25Results []vectorstore.SearchResult
	if opts.HybridEnabled {
		bm25Results, err = store.SearchDocumentsFullText(ctx, query, opts.BM25MatchCount)
		if err != nil {
			return nil, fmt.Errorf("retrieve: search full text: %w", err)
		}
	}

	if len(vectorResults) == 0 && len(bm25Results) == 0 {
		return nil, nil
	}

	merged := merge(vectorResults, bm25Results)
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.BM25Rank != b.BM25Rank {
			return a.BM25Rank > b.BM25Rank
		}
		if a.VectorPos != b.VectorPos {
			return a.VectorPos < b.VectorPos
		}
		return a.BM25Pos < b.BM25Pos
	})

	if opts.DesiredMatchCount > 0 && len(merged) > opts.DesiredMatchCount {
		merged = merged[:opts.DesiredMatchCount]
	}
	return merged, nil
}

type locationKey struct {
	filePath string
	chunkID  int
}

func keyOf(row vectorstore.Row) locationKey {
	return locationKey{filePath: row.FilePath, chunkID: row.ChunkID}
}

// merge unions the two result sets by (filepath, chunkId), keeping the
// best available similarity and bm25Rank for each distinct location. A
// location present in only one source carries the other source's
// zero-value fields (HasVector/HasBM25 mark which were actually set).
func merge(vectorResults, bm25Results []vectorstore.SearchResult) []Match {
	index := make(map[locationKey]int)
	var out []Match

	for pos, r := range vectorResults {
		key := keyOf(r.Row)
		out = append(out, Match{
			Row:        r.Row,
			Similarity: r.Similarity,
			HasVector:  true,
			VectorPos:  pos,
		})
		index[key] = len(out) - 1
	}

	for pos, r := range bm25Results {
		key := keyOf(r.Row)
		if i, ok := index[key]; ok {
			out[i].BM25Rank = r.BM25Rank
			out[i].HasBM25 = true
			out[i].BM25Pos = pos
			continue
		}
		out = append(out, Match{
			Row:      r.Row,
			BM25Rank: r.BM25Rank,
			HasBM25:  true,
			BM25Pos:  pos,
		})
		index[key] = len(out) - 1
	}

	return out
}
