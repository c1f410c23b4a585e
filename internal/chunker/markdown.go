package chunker

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownChunker splits Markdown/MDX documents on heading boundaries,
// sub-splitting any resulting section that exceeds the token cap on
// paragraph boundaries.
type MarkdownChunker struct {
	md      goldmark.Markdown
	counter TokenCounter
	tokenCap int
}

// NewMarkdownChunker builds a chunker using goldmark's block parser for
// heading detection and counter/tokenCap to bound section size.
func NewMarkdownChunker(counter TokenCounter, tokenCap int) *MarkdownChunker {
	if tokenCap <= 0 {
		tokenCap = DefaultTokenCap
	}
	return &MarkdownChunker{
		md:       goldmark.New(),
		counter:  counter,
		tokenCap: tokenCap,
	}
}

// Chunk splits an MDX/Markdown document into titled sections. Content
// before the first heading forms an untitled chunk. Oversize sections are
// further split on paragraph boundaries, each part keeping the parent
// title with a "_partN" suffix.
func (c *MarkdownChunker) Chunk(ctx context.Context, content string) ([]Chunk, error) {
	source := []byte(content)
	root := c.md.Parser().Parse(text.NewReader(source))

	type section struct {
		title string
		start int
	}
	var sections []section

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			start, _, ok := nodeSpan(n, source)
			if !ok {
				continue
			}
			// An ATX heading's segment starts at its text, after the '#'
			// markers; back up to the start of the line so the chunk body
			// includes the heading line itself.
			start = strings.LastIndexByte(content[:start], '\n') + 1
			sections = append(sections, section{title: headingText(h, source), start: start})
		}
	}

	seq := &chunkIDSeq{}
	var chunks []Chunk

	emit := func(title, body string, startLine int) {
		body = strings.TrimRight(body, "\n")
		if strings.TrimSpace(body) == "" {
			return
		}
		endLine := startLine + strings.Count(body, "\n")
		parts := c.splitSection(body)
		for i, part := range parts {
			partTitle := title
			if len(parts) > 1 {
				partTitle = partSuffix(title, i)
			}
			chunks = append(chunks, Chunk{
				ChunkID:    seq.take(),
				ChunkTitle: partTitle,
				Content:    part,
				SourceType: "doc",
				Language:   "markdown",
				StartLine:  startLine,
				EndLine:    endLine,
			})
		}
	}

	if len(sections) == 0 {
		emit("", content, 1)
		return chunks, nil
	}

	if sections[0].start > 0 {
		leading := content[:sections[0].start]
		emit("", leading, 1)
	}

	for i, s := range sections {
		end := len(content)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		startLine := 1 + strings.Count(content[:s.start], "\n")
		emit(s.title, content[s.start:end], startLine)
	}

	return chunks, nil
}

// splitSection sub-splits body on blank-line paragraph boundaries so no
// resulting piece exceeds the token cap; returns {body} unchanged when it
// already fits.
func (c *MarkdownChunker) splitSection(body string) []string {
	if c.counter.Count(body) <= c.tokenCap {
		return []string{body}
	}
	var boundaries []int
	sep := "\n\n"
	for idx := strings.Index(body, sep); idx != -1; {
		abs := idx + len(sep)
		boundaries = append(boundaries, abs)
		next := strings.Index(body[abs:], sep)
		if next == -1 {
			break
		}
		idx = abs + next
	}
	return splitOnTokenCap(body, boundaries, c.tokenCap, c.counter)
}

// headingText concatenates the literal text of a heading's inline children.
func headingText(h *ast.Heading, source []byte) string {
	var sb strings.Builder
	for n := h.FirstChild(); n != nil; n = n.NextSibling() {
		collectText(n, source, &sb)
	}
	return strings.TrimSpace(sb.String())
}

func collectText(n ast.Node, source []byte, sb *strings.Builder) {
	if t, ok := n.(*ast.Text); ok {
		sb.Write(t.Segment.Value(source))
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		collectText(c, source, sb)
	}
}

// segmentHaver is the goldmark node method exposing a span of raw source
// lines. Leaf blocks (Heading, Paragraph, CodeBlock, ...) own such lines;
// container blocks (List, Blockquote) own none, so nodeSpan recurses into
// their children to find the overall byte span instead. Inline nodes do not
// support Lines(), so nodeSpan skips them.
type segmentHaver interface {
	Lines() *text.Segments
}

// nodeSpan returns the byte offsets in source spanned by n, computed as the
// min start / max stop over every descendant that owns raw-line segments.
func nodeSpan(n ast.Node, source []byte) (start, stop int, ok bool) {
	start, stop = -1, -1
	err := ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeInline {
			return ast.WalkSkipChildren, nil
		}
		if sh, ok := node.(segmentHaver); ok {
			lines := sh.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				if start == -1 || seg.Start < start {
					start = seg.Start
				}
				if seg.Stop > stop {
					stop = seg.Stop
				}
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return 0, 0, false
	}
	return start, stop, start != -1
}
