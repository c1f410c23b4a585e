package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mimir-run/mimir/internal/chunker"
)

// entityBatchSize is the number of code entities batched into one
// generateEntityContexts call.
const entityBatchSize = 5

// fileContextTokenBudget bounds how much of a file's content is included
// verbatim as context for entity-context generation before truncation.
const fileContextTokenBudget = 16000

// entityContextSystemPrompt instructs the model to produce a short
// situating description per numbered entity.
const entityContextSystemPrompt = "You write extremely concise (100-200 token) descriptions of code entities, situating each one within the surrounding file. Respond with a numbered list, one description per entity, in the same order as the entities were given."

// fileChunkContextSystemPrompt is the MDX analogue of
// entityContextSystemPrompt, producing a single per-chunk summary.
const fileChunkContextSystemPrompt = "You write a concise (150-250 token) summary of how the given section fits into the surrounding document."

// GenerateEntityContexts produces one short contextual description per code
// entity, processed in batches of entityBatchSize. Each call is prompted
// with the full file content (or a token-bounded truncation when it
// exceeds fileContextTokenBudget) and a numbered list of entity blocks. The
// response is parsed as a numbered list tolerant of "1.", "1:", "1)"
// markers, falling back to double-newline splitting, and finally to
// repeating the whole response for every entity in the batch if no
// structure can be recovered.
func (c *Client) GenerateEntityContexts(ctx context.Context, entities []chunker.Entity, fileContent, filePath string, counter TokenEstimator) ([]string, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	truncated := truncateToTokenBudget(fileContent, counter, fileContextTokenBudget)
	results := make([]string, len(entities))

	for start := 0; start < len(entities); start += entityBatchSize {
		end := start + entityBatchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := entities[start:end]

		prompt := buildEntityBatchPrompt(batch, truncated, filePath)
		tokens := c.estimateTokens(entityContextSystemPrompt, prompt, nil)

		var raw string
		err := c.scheduler.Do(ctx, tokens, func(ctx context.Context) error {
			text, err := c.provider.CompleteText(ctx, TextRequest{
				SystemPrompt: entityContextSystemPrompt,
				UserPrompt:   prompt,
			})
			if err != nil {
				return err
			}
			raw = text
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("generating entity contexts for %s[%d:%d]: %w", filePath, start, end, err)
		}

		parsed := parseNumberedList(raw, len(batch))
		copy(results[start:end], parsed)
	}

	return results, nil
}

// GenerateFileChunkContexts produces one ~150-250 token summary per MDX
// chunk, one call per chunk.
func (c *Client) GenerateFileChunkContexts(ctx context.Context, chunks []chunker.Chunk, fileContent string) ([]string, error) {
	results := make([]string, len(chunks))
	for i, ch := range chunks {
		prompt := buildFileChunkPrompt(ch, fileContent)
		tokens := c.estimateTokens(fileChunkContextSystemPrompt, prompt, nil)

		var raw string
		err := c.scheduler.Do(ctx, tokens, func(ctx context.Context) error {
			text, err := c.provider.CompleteText(ctx, TextRequest{
				SystemPrompt: fileChunkContextSystemPrompt,
				UserPrompt:   prompt,
			})
			if err != nil {
				return err
			}
			raw = text
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("generating file chunk context %d: %w", ch.ChunkID, err)
		}
		results[i] = strings.TrimSpace(raw)
	}
	return results, nil
}

func buildEntityBatchPrompt(batch []chunker.Entity, fileContent, filePath string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n\n%s\n\nEntities:\n", filePath, fileContent)
	for i, e := range batch {
		title := e.QualifiedName
		if title == "" {
			title = e.Name
		}
		fmt.Fprintf(&sb, "%d. %s (%s), lines %d-%d\n", i+1, title, e.EntityType, e.StartLine, e.EndLine)
	}
	return sb.String()
}

func buildFileChunkPrompt(ch chunker.Chunk, fileContent string) string {
	return fmt.Sprintf("File content:\n%s\n\nSection to summarize (%q):\n%s", fileContent, ch.ChunkTitle, ch.Content)
}

// truncateToTokenBudget trims text to at most budget tokens as measured by
// counter, cutting at a rune boundary from the end.
func truncateToTokenBudget(text string, counter TokenEstimator, budget int) string {
	if counter.Count(text) <= budget {
		return text
	}
	runes := []rune(text)
	// Binary-search-free linear shrink: counters are cheap enough (simple
	// length-based heuristics or BPE) that a single proportional cut plus
	// one corrective trim is sufficient in practice.
	approxRatio := float64(budget) / float64(counter.Count(text))
	cut := int(float64(len(runes)) * approxRatio)
	if cut >= len(runes) {
		cut = len(runes) - 1
	}
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && counter.Count(string(runes[:cut])) > budget {
		cut -= cut / 10
		if cut < 0 {
			cut = 0
		}
	}
	return string(runes[:cut])
}

var numberedMarkerRe = regexp.MustCompile(`(?m)^\s*(\d+)\s*[\.\):]\s*`)

// parseNumberedList splits raw into n ordered items. It first tries
// numbered markers ("1.", "1:", "1)"), then falls back to splitting on
// blank lines, and finally — if neither strategy yields exactly n pieces —
// uses the entire (non-empty) response for every item.
func parseNumberedList(raw string, n int) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return make([]string, n)
	}

	if items := splitByNumberedMarkers(raw); len(items) == n {
		return items
	}

	if items := splitByBlankLines(raw); len(items) == n {
		return items
	}

	out := make([]string, n)
	for i := range out {
		out[i] = raw
	}
	return out
}

func splitByNumberedMarkers(raw string) []string {
	locs := numberedMarkerRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}
	var items []string
	for i, loc := range locs {
		contentStart := loc[1]
		contentEnd := len(raw)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		items = append(items, strings.TrimSpace(raw[contentStart:contentEnd]))
	}
	return items
}

func splitByBlankLines(raw string) []string {
	parts := regexp.MustCompile(`\n\s*\n`).Split(raw, -1)
	var items []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			items = append(items, t)
		}
	}
	return items
}
