// Package reconcile implements the ingestion run's core algorithm:
// classify every desired chunk against the current store state as
// unchanged, moved, or new; apply moves; delete orphans and stranded
// rows; generate context and embeddings for new chunks; and upsert the
// final rows. This is the heart of the ingestion pipeline.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/mimir-run/mimir/internal/chunker"
	"github.com/mimir-run/mimir/internal/fingerprint"
	"github.com/mimir-run/mimir/internal/llm/chat"
	"github.com/mimir-run/mimir/internal/llm/embedding"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

// DesiredChunk is one chunk the fetch+chunk stage wants persisted. Entity
// is non-nil only for code chunks that map one-to-one onto a single
// extracted language entity (not split into parts, not a module-level
// fallback); those without it fall back to whole-chunk context
// generation instead of batched entity-context generation.
type DesiredChunk struct {
	Checksum    string
	FilePath    string
	ChunkID     int
	ChunkTitle  string
	Content     string
	FileContent string
	SourceType  fingerprint.SourceType
	EntityType  string
	Language    string
	StartLine   int
	EndLine     int
	GithubURL   string
	DocsURL     string
	Entity      *chunker.Entity
}

// RepoScope is one configured repository's deletion scope, derived by the
// caller from its source.RepoScope.
type RepoScope struct {
	BaseURL    string // "https://<host>/<owner>/<repo>/blob/<branch>/"
	Identifier string // "<owner>/<repo>"
}

// ContextGenerator produces the contextual prefix text prepended to a
// chunk's content before embedding, matching internal/llm/chat.Client's
// two generation modes.
type ContextGenerator interface {
	GenerateEntityContexts(ctx context.Context, entities []chunker.Entity, fileContent, filePath string, counter chat.TokenEstimator) ([]string, error)
	GenerateFileChunkContexts(ctx context.Context, chunks []chunker.Chunk, fileContent string) ([]string, error)
}

// Embedder embeds the final contextualText for each new chunk, preserving
// input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]embedding.Vector, error)
}

// Stats summarizes one reconciliation run.
type Stats struct {
	UnchangedChunks int
	MovedChunks     int
	UpsertedChunks  int
	DeletedChunks   int
}

// target is one classified desired chunk, carrying the outcome of
// classification (step 3) through to the final upsert (step 8).
type target struct {
	desired    DesiredChunk
	locKey     fingerprint.LocationKey
	existingID int64 // 0 if new, -1 if dropped as a duplicate target location
	isNew      bool
}

// Run executes the full 8-step algorithm from the reconciler design: build
// target state, fetch existing rows by checksum, classify, move, compute
// active sets, delete orphans/stranded rows, generate context+embeddings
// for new chunks, and upsert. A failure fetching existing rows or during
// the context/embed/upsert steps aborts the run with the stats gathered so
// far; moves and deletes already applied are not rolled back.
func Run(ctx context.Context, store vectorstore.Store, gen ContextGenerator, embedder Embedder, counter chat.TokenEstimator, desired []DesiredChunk, scopes []RepoScope) (Stats, error) {
	var stats Stats

	// Step 1: build desired state, preserving input order as the
	// canonical deterministic iteration order.
	targets := make([]*target, len(desired))
	checksumSet := make(map[string]bool)
	for i, d := range desired {
		targets[i] = &target{
			desired: d,
			locKey:  fingerprint.Key(d.FilePath, d.ChunkID, d.SourceType),
		}
		checksumSet[d.Checksum] = true
	}

	// Step 2: fetch existing rows by checksum.
	checksums := make([]string, 0, len(checksumSet))
	for c := range checksumSet {
		checksums = append(checksums, c)
	}
	existingByChecksum, err := store.FetchChunksByChecksums(ctx, checksums)
	if err != nil {
		return stats, fmt.Errorf("reconcile: fetch existing chunks: %w", err)
	}

	// Step 3: classify.
	assignedExisting := make(map[int64]bool)
	takenLocKeys := make(map[fingerprint.LocationKey]bool)
	var moves []vectorstore.Move

	for _, t := range targets {
		if takenLocKeys[t.locKey] {
			// Duplicate target location: the later occurrence is dropped
			// without a warning; the first one keeps the location.
			t.isNew = false
			t.existingID = -1
			continue
		}
		takenLocKeys[t.locKey] = true

		candidates := existingByChecksum[t.desired.Checksum]

		// Prefer a row already sitting at the exact target location.
		var exact *vectorstore.ExistingChunkInfo
		for i := range candidates {
			c := &candidates[i]
			if assignedExisting[c.ID] {
				continue
			}
			if c.FilePath == t.desired.FilePath && c.ChunkID == t.desired.ChunkID &&
				fingerprint.Equivalent(fingerprint.SourceType(c.SourceType), t.desired.SourceType) {
				exact = c
				break
			}
		}
		if exact != nil {
			assignedExisting[exact.ID] = true
			t.existingID = exact.ID
			if !fingerprint.IdenticalLiteral(fingerprint.SourceType(exact.SourceType), t.desired.SourceType) {
				// Alias-only difference: location unchanged, metadata move.
				moves = append(moves, vectorstore.Move{
					ID:            exact.ID,
					NewFilePath:   t.desired.FilePath,
					NewChunkID:    t.desired.ChunkID,
					NewSourceType: string(t.desired.SourceType),
					NewGithubURL:  t.desired.GithubURL,
				})
				stats.MovedChunks++
			} else {
				stats.UnchangedChunks++
			}
			continue
		}

		// Reuse a stranded row with the same checksum first, else any
		// unassigned row with the same checksum.
		var reuse *vectorstore.ExistingChunkInfo
		for i := range candidates {
			c := &candidates[i]
			if assignedExisting[c.ID] {
				continue
			}
			if fingerprint.IsStranded(c.FilePath) {
				reuse = c
				break
			}
		}
		if reuse == nil {
			for i := range candidates {
				c := &candidates[i]
				if !assignedExisting[c.ID] {
					reuse = c
					break
				}
			}
		}

		if reuse != nil {
			assignedExisting[reuse.ID] = true
			t.existingID = reuse.ID
			moves = append(moves, vectorstore.Move{
				ID:            reuse.ID,
				NewFilePath:   t.desired.FilePath,
				NewChunkID:    t.desired.ChunkID,
				NewSourceType: string(t.desired.SourceType),
				NewGithubURL:  t.desired.GithubURL,
			})
			stats.MovedChunks++
			continue
		}

		t.isNew = true
	}

	// Step 4: apply moves before deletes and inserts. The store is
	// expected to leave un-landable targets stranded; no retry here.
	if len(moves) > 0 {
		if err := store.MoveChunksAtomic(ctx, moves); err != nil {
			return stats, fmt.Errorf("reconcile: apply moves: %w", err)
		}
	}

	// Step 5: compute active sets.
	activeChecksums := make(map[string]bool, len(checksumSet))
	activeGithubUrls := make(map[string]bool)
	for _, t := range targets {
		if t.existingID == -1 {
			continue
		}
		activeChecksums[t.desired.Checksum] = true
		if t.desired.GithubURL != "" {
			activeGithubUrls[normalizeGithubURL(t.desired.GithubURL)] = true
		}
	}

	repoBaseUrls := make([]string, len(scopes))
	repoIdentifiers := make([]string, len(scopes))
	for i, s := range scopes {
		repoBaseUrls[i] = s.BaseURL
		repoIdentifiers[i] = s.Identifier
	}

	// Step 6: delete orphans and stranded rows. Empty repoBaseUrls means
	// no configured scope, so no deletion is attempted at all.
	if len(repoBaseUrls) > 0 {
		orphanIDs, err := store.FindOrphanedChunkIds(ctx, activeChecksums, repoBaseUrls, activeGithubUrls)
		if err != nil {
			return stats, fmt.Errorf("reconcile: find orphaned chunks: %w", err)
		}
		strandedIDs, err := store.FindStrandedChunkIds(ctx, activeChecksums, repoIdentifiers)
		if err != nil {
			return stats, fmt.Errorf("reconcile: find stranded chunks: %w", err)
		}

		toDelete := dedupeIDs(orphanIDs, strandedIDs)
		if len(toDelete) > 0 {
			if err := store.DeleteChunksByIDs(ctx, toDelete); err != nil {
				return stats, fmt.Errorf("reconcile: delete orphaned/stranded chunks: %w", err)
			}
			stats.DeletedChunks = len(toDelete)
		}
	}

	// Step 7: context + embed pass for new chunks, grouped by filepath.
	newTargets := make([]*target, 0)
	for _, t := range targets {
		if t.isNew {
			newTargets = append(newTargets, t)
		}
	}

	contextualTexts, err := generateContexts(ctx, gen, counter, newTargets)
	if err != nil {
		return stats, fmt.Errorf("reconcile: generate contexts: %w", err)
	}

	var vectors []embedding.Vector
	if len(newTargets) > 0 {
		vectors, err = embedder.EmbedDocuments(ctx, contextualTexts)
		if err != nil {
			return stats, fmt.Errorf("reconcile: embed new chunks: %w", err)
		}
		if len(vectors) != len(newTargets) {
			return stats, fmt.Errorf("reconcile: embedder returned %d vectors for %d new chunks", len(vectors), len(newTargets))
		}
	}

	// Step 8: upsert the fully-populated rows. Only new chunks are written
	// here. Unchanged and moved targets are not rewritten: their checksum
	// matched an existing row, and moveChunksAtomic (step 4) updated only
	// their location fields (file path, chunk id, source type, GitHub URL).
	// Their stored title, entity type, start/end lines and docs URL keep
	// the values from when the row was first written.
	rows := make([]vectorstore.Row, 0, len(newTargets))
	for i, t := range newTargets {
		rows = append(rows, vectorstore.Row{
			FilePath:       t.desired.FilePath,
			ChunkID:        t.desired.ChunkID,
			ChunkTitle:     t.desired.ChunkTitle,
			Content:        t.desired.Content,
			ContextualText: contextualTexts[i],
			Embedding:      vectors[i],
			Checksum:       t.desired.Checksum,
			SourceType:     string(t.desired.SourceType),
			EntityType:     t.desired.EntityType,
			StartLine:      t.desired.StartLine,
			EndLine:        t.desired.EndLine,
			GithubURL:      t.desired.GithubURL,
			DocsURL:        t.desired.DocsURL,
		})
	}

	if err := store.UpsertChunks(ctx, rows); err != nil {
		return stats, fmt.Errorf("reconcile: upsert chunks: %w", err)
	}
	stats.UpsertedChunks = len(rows)

	return stats, nil
}

// normalizeGithubURL strips any "#fragment" suffix, matching the
// orphan-scope comparison rule.
func normalizeGithubURL(url string) string {
	for i, r := range url {
		if r == '#' {
			return url[:i]
		}
	}
	return url
}

func dedupeIDs(lists ...[]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, list := range lists {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// generateContexts runs the context-generation pass for every new chunk,
// grouped by filepath: code chunks that map one-to-one onto an extracted
// entity go through the batched entity-context path; everything else
// (doc chunks, module-level and split-part code fallbacks) goes through
// the per-chunk file-context path. The returned slice is aligned
// index-for-index with newTargets, ready for a single embedDocuments call.
func generateContexts(ctx context.Context, gen ContextGenerator, counter chat.TokenEstimator, newTargets []*target) ([]string, error) {
	result := make([]string, len(newTargets))
	if len(newTargets) == 0 {
		return result, nil
	}

	byFile := make(map[string][]int)
	order := make([]string, 0)
	for i, t := range newTargets {
		if _, ok := byFile[t.desired.FilePath]; !ok {
			order = append(order, t.desired.FilePath)
		}
		byFile[t.desired.FilePath] = append(byFile[t.desired.FilePath], i)
	}

	for _, filePath := range order {
		indices := byFile[filePath]
		fileContent := newTargets[indices[0]].desired.FileContent

		var entityIdx []int
		var fallbackIdx []int
		for _, i := range indices {
			if newTargets[i].desired.Entity != nil {
				entityIdx = append(entityIdx, i)
			} else {
				fallbackIdx = append(fallbackIdx, i)
			}
		}

		if len(entityIdx) > 0 {
			entities := make([]chunker.Entity, len(entityIdx))
			for j, i := range entityIdx {
				entities[j] = *newTargets[i].desired.Entity
			}
			contexts, err := gen.GenerateEntityContexts(ctx, entities, fileContent, filePath, counter)
			if err != nil {
				return nil, fmt.Errorf("generate entity contexts for %s: %w", filePath, err)
			}
			if len(contexts) != len(entityIdx) {
				return nil, fmt.Errorf("generate entity contexts for %s: got %d contexts for %d entities", filePath, len(contexts), len(entityIdx))
			}
			for j, i := range entityIdx {
				result[i] = chunker.JoinCodeContextual(contexts[j], newTargets[i].desired.Content)
			}
		}

		if len(fallbackIdx) > 0 {
			chunks := make([]chunker.Chunk, len(fallbackIdx))
			for j, i := range fallbackIdx {
				d := newTargets[i].desired
				chunks[j] = chunker.Chunk{
					ChunkID:    d.ChunkID,
					ChunkTitle: d.ChunkTitle,
					Content:    d.Content,
					SourceType: string(d.SourceType),
					EntityType: d.EntityType,
					Language:   d.Language,
					StartLine:  d.StartLine,
					EndLine:    d.EndLine,
				}
			}
			contexts, err := gen.GenerateFileChunkContexts(ctx, chunks, fileContent)
			if err != nil {
				return nil, fmt.Errorf("generate file chunk contexts for %s: %w", filePath, err)
			}
			if len(contexts) != len(fallbackIdx) {
				return nil, fmt.Errorf("generate file chunk contexts for %s: got %d contexts for %d chunks", filePath, len(contexts), len(fallbackIdx))
			}
			for j, i := range fallbackIdx {
				d := newTargets[i].desired
				if fingerprint.Normalize(d.SourceType) == fingerprint.SourceDoc {
					result[i] = chunker.JoinDocContextual(contexts[j], d.Content)
				} else {
					result[i] = chunker.JoinCodeContextual(contexts[j], d.Content)
				}
			}
		}
	}

	return result, nil
}
