package chunker

import (
	"context"
	"path/filepath"
	"strings"
)

// docExtensions are treated as the Markdown/MDX path; everything else with a
// recognized code extension goes through the entity extractors, and
// anything unrecognized falls through the code chunker's generic
// single/oversize-split path so it still gets token-capped.
var docExtensions = map[string]bool{
	".md":  true,
	".mdx": true,
}

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cs":   "csharp",
	".md":   "markdown",
	".mdx":  "mdx",
}

// DetectLanguage returns a best-effort language tag for filePath's
// extension, or "" if unrecognized. Purely additive metadata: citation and
// reconciliation logic never depend on it.
func DetectLanguage(filePath string) string {
	return languageByExt[strings.ToLower(filepath.Ext(filePath))]
}

// Service dispatches a fetched file to the Markdown or code chunking path
// by extension.
type Service struct {
	markdown *MarkdownChunker
	code     *CodeChunker
}

// NewService builds a dispatching chunker. tokenCap bounds both paths.
func NewService(extractors []EntityExtractor, counter TokenCounter, tokenCap int) *Service {
	return &Service{
		markdown: NewMarkdownChunker(counter, tokenCap),
		code:     NewCodeChunker(extractors, counter, tokenCap),
	}
}

// ChunkFile splits one fetched file's content into chunks, numbered
// 0..N-1 densely in emission order.
func (s *Service) ChunkFile(ctx context.Context, content, filePath string) ([]Chunk, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if docExtensions[ext] {
		return s.markdown.Chunk(ctx, content)
	}
	return s.code.Chunk(ctx, content, filePath, ext, DetectLanguage(filePath))
}
