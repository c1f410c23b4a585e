// Package answer composes a chat answer from retrieved chunks: resolving
// each chunk's canonical source link, invoking the chat client with the
// retrieved context, and mapping the model's citations back onto the
// chunks that were actually retrieved.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mimir-run/mimir/internal/fingerprint"
	"github.com/mimir-run/mimir/internal/llm/chat"
	"github.com/mimir-run/mimir/internal/retrieve"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

// SourceLink is one resolved, citable source for a retrieved chunk.
type SourceLink struct {
	FilePath   string
	ChunkTitle string
	FinalURL   string
}

// Answer is a complete, non-streaming composed answer.
type Answer struct {
	Text    string
	Sources []SourceLink
}

// Delta is one increment of a streaming answer. Sources is populated only
// on the first delta that carries any content; every subsequent delta
// leaves it nil.
type Delta struct {
	Text    string
	Sources []SourceLink
}

// ResolveSourceLink computes a chunk's canonical, clickable link. Docs
// prefer their docs-site URL, falling back to the GitHub blob URL, falling
// back to the bare filepath. Code links point at the GitHub blob with a
// line-range fragment, falling back the same way.
func ResolveSourceLink(row vectorstore.Row) SourceLink {
	link := SourceLink{FilePath: row.FilePath, ChunkTitle: row.ChunkTitle}

	if isDoc(row) {
		switch {
		case row.DocsURL != "":
			link.FinalURL = row.DocsURL
		case row.GithubURL != "":
			link.FinalURL = row.GithubURL
		default:
			link.FinalURL = row.FilePath
		}
		return link
	}

	base := stripFragment(row.GithubURL)
	switch {
	case base != "" && row.StartLine > 0 && row.EndLine > row.StartLine:
		link.FinalURL = fmt.Sprintf("%s#L%d-L%d", base, row.StartLine, row.EndLine)
	case base != "" && row.StartLine > 0:
		link.FinalURL = fmt.Sprintf("%s#L%d", base, row.StartLine)
	case base != "":
		link.FinalURL = base
	case row.GithubURL != "":
		link.FinalURL = row.GithubURL
	default:
		link.FinalURL = row.FilePath
	}
	return link
}

func isDoc(row vectorstore.Row) bool {
	lower := strings.ToLower(row.FilePath)
	if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".mdx") {
		return true
	}
	return fingerprint.Normalize(fingerprint.SourceType(row.SourceType)) == fingerprint.SourceDoc
}

func stripFragment(url string) string {
	if i := strings.IndexByte(url, '#'); i != -1 {
		return url[:i]
	}
	return url
}

// Compose runs a single non-streaming GenerateAnswer call against the
// retrieved matches and resolves its sources. With no matches, it returns
// the client's no-context fallback answer without calling the model.
func Compose(ctx context.Context, chatClient *chat.Client, matches []retrieve.Match, question, systemPrompt string) (Answer, error) {
	if len(matches) == 0 {
		return Answer{Text: chat.NoContextFallbackAnswer}, nil
	}

	contextChunks := make([]chat.ContextChunk, len(matches))
	for i, m := range matches {
		contextChunks[i] = chat.ContextChunk{
			FilePath:   m.Row.FilePath,
			ChunkTitle: m.Row.ChunkTitle,
			Content:    m.Row.Content,
		}
	}

	structured, err := chatClient.GenerateAnswer(ctx, question, contextChunks, systemPrompt)
	if err != nil {
		return Answer{}, fmt.Errorf("answer: generate: %w", err)
	}

	return Answer{
		Text:    structured.Answer,
		Sources: resolveSources(matches, structured.Sources),
	}, nil
}

// resolveSources maps the model's declared citations back onto the
// retrieved chunks by (filepath, chunkTitle), falling back to a filepath
// match. With no citations declared, every retrieved chunk is returned as
// a source.
func resolveSources(matches []retrieve.Match, citations []chat.Source) []SourceLink {
	if len(citations) == 0 {
		out := make([]SourceLink, len(matches))
		for i, m := range matches {
			out[i] = ResolveSourceLink(vectorstore.Row(m.Row))
		}
		return out
	}

	var out []SourceLink
	seen := make(map[string]bool)
	for _, c := range citations {
		var matchedRow *vectorstore.Row
		for i := range matches {
			row := vectorstore.Row(matches[i].Row)
			if row.FilePath == c.FilePath && row.ChunkTitle == c.ChunkTitle {
				matchedRow = &row
				break
			}
		}
		if matchedRow == nil {
			for i := range matches {
				row := vectorstore.Row(matches[i].Row)
				if row.FilePath == c.FilePath {
					matchedRow = &row
					break
				}
			}
		}
		if matchedRow == nil {
			continue
		}
		key := matchedRow.FilePath + "\x00" + fmt.Sprint(matchedRow.ChunkID)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ResolveSourceLink(*matchedRow))
	}
	return out
}

// Stream runs a streaming GenerateAnswer call, emitting one Delta per
// content increment with Sources populated only on the first non-empty
// delta. With no matches, it emits the no-context fallback as a single
// delta and closes.
func Stream(ctx context.Context, chatClient *chat.Client, matches []retrieve.Match, question, systemPrompt string) (<-chan Delta, <-chan error) {
	out := make(chan Delta)
	errCh := make(chan error, 1)

	if len(matches) == 0 {
		go func() {
			defer close(out)
			defer close(errCh)
			out <- Delta{Text: chat.NoContextFallbackAnswer}
		}()
		return out, errCh
	}

	contextChunks := make([]chat.ContextChunk, len(matches))
	for i, m := range matches {
		contextChunks[i] = chat.ContextChunk{
			FilePath:   m.Row.FilePath,
			ChunkTitle: m.Row.ChunkTitle,
			Content:    m.Row.Content,
		}
	}

	partials, providerErrs := chatClient.StreamAnswer(ctx, question, contextChunks, systemPrompt)

	go func() {
		defer close(out)
		defer close(errCh)

		var prev chat.StructuredAnswer
		sourcesEmitted := false

		for partial := range partials {
			text := chat.AnswerDelta(prev, partial)
			prev = partial
			if text == "" {
				continue
			}

			d := Delta{Text: text}
			if !sourcesEmitted {
				d.Sources = resolveSources(matches, partial.Sources)
				sourcesEmitted = true
			}

			select {
			case out <- d:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := <-providerErrs; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}
