// Package ingest orchestrates one end-to-end ingestion run: fetch every
// configured repository's files, chunk them, and hand the resulting
// desired-chunk set to the reconciler. It is the concrete implementation
// the webhook and manual /ingest routes trigger through the
// internal/webhook.Trigger interface, grounded on the teacher's
// cmd/conexus/main.go indexer wiring (fetch -> chunk -> embed -> store)
// generalized to mimir's fetch/chunk/reconcile pipeline.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/mimir-run/mimir/internal/chunker"
	"github.com/mimir-run/mimir/internal/fingerprint"
	"github.com/mimir-run/mimir/internal/observability"
	"github.com/mimir-run/mimir/internal/reconcile"
	"github.com/mimir-run/mimir/internal/repoconfig"
	"github.com/mimir-run/mimir/internal/source"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

// Fetcher downloads one repository scope's files.
type Fetcher interface {
	Fetch(ctx context.Context, scope source.RepoScope) ([]source.File, error)
}

// Chunker splits one fetched file's content into chunks.
type Chunker interface {
	ChunkFile(ctx context.Context, content, filePath string) ([]chunker.Chunk, error)
}

// Pipeline wires together one ingestion run's fetch, chunk, and
// reconcile stages.
type Pipeline struct {
	Fetcher    Fetcher
	Chunker    Chunker
	Store      vectorstore.Store
	ContextGen reconcile.ContextGenerator
	Embedder   reconcile.Embedder
	Counter    chunkTokenCounter
	Logger     *observability.Logger
	Metrics    *observability.MetricsCollector
}

// chunkTokenCounter matches reconcile.Run's counter parameter (chat.TokenEstimator)
// without importing internal/llm/chat here, since the only operation ingest
// needs from it is Count.
type chunkTokenCounter interface {
	Count(text string) int
}

// Result is one completed ingestion run's outcome.
type Result struct {
	FilesFetched int
	ChunksSeen   int
	DurationMs   int64
	Stats        reconcile.Stats
}

// Run fetches every repo's files, chunks them into a combined desired-chunk
// set, and reconciles that set against the store in a single pass — so
// cross-repo orphan/stranded detection sees every repo's active checksums
// at once, per spec.md's decision that an empty desired set for a given
// scope deletes everything that scope currently owns.
func Run(ctx context.Context, p Pipeline, repos []repoconfig.RepoConfig, excludePatterns []string) (Result, error) {
	start := time.Now()

	var desired []reconcile.DesiredChunk
	scopes := make([]reconcile.RepoScope, 0, len(repos))
	filesFetched := 0

	for _, repo := range repos {
		scope := repo.ToSourceScope(excludePatterns)
		scopes = append(scopes, repo.ToReconcileScope())

		files, err := p.Fetcher.Fetch(ctx, scope)
		if err != nil {
			if p.Metrics != nil {
				p.Metrics.RecordIngestError("fetch")
			}
			return Result{}, fmt.Errorf("ingest: fetch %s/%s: %w", scope.Owner, scope.Repo, err)
		}
		filesFetched += len(files)

		for _, file := range files {
			chunks, err := p.Chunker.ChunkFile(ctx, file.Content, file.Path)
			if err != nil {
				if p.Metrics != nil {
					p.Metrics.RecordIngestError("chunk")
				}
				return Result{}, fmt.Errorf("ingest: chunk %s: %w", file.Path, err)
			}

			relPath := file.Path
			if file.RelativePath != "" {
				relPath = file.RelativePath
			}

			for _, c := range chunks {
				desired = append(desired, reconcile.DesiredChunk{
					Checksum:    fingerprint.Checksum(c.Content),
					FilePath:    relPath,
					ChunkID:     c.ChunkID,
					ChunkTitle:  c.ChunkTitle,
					Content:     c.Content,
					FileContent: file.Content,
					SourceType:  fingerprint.SourceType(c.SourceType),
					EntityType:  c.EntityType,
					Language:    c.Language,
					StartLine:   c.StartLine,
					EndLine:     c.EndLine,
					GithubURL:   file.SourceURL,
				})
			}
		}

		if p.Logger != nil {
			p.Logger.LogIngestPhase(ctx, "fetch", len(files), time.Since(start).Milliseconds())
		}
	}

	stats, err := reconcile.Run(ctx, p.Store, p.ContextGen, p.Embedder, p.Counter, desired, scopes)
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.RecordIngestError("reconcile")
		}
		return Result{}, fmt.Errorf("ingest: reconcile: %w", err)
	}

	if p.Metrics != nil {
		p.Metrics.RecordIngestFilesFetched(filesFetched)
		p.Metrics.RecordReconcileOutcome(stats.UpsertedChunks, stats.DeletedChunks, stats.MovedChunks)
	}
	if p.Logger != nil {
		p.Logger.LogReconcile(ctx, stats.UnchangedChunks, stats.MovedChunks, stats.UpsertedChunks, stats.DeletedChunks, time.Since(start).Milliseconds())
	}

	return Result{
		FilesFetched: filesFetched,
		ChunksSeen:   len(desired),
		DurationMs:   time.Since(start).Milliseconds(),
		Stats:        stats,
	}, nil
}
