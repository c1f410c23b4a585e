// Package source walks a configured GitHub repository and downloads the raw
// bytes of every file kept by its include/exclude filters. It never mutates
// anything remote.
package source

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// RepoScope names one repository this ingestion run manages, and the
// filters bounding which of its files are fetched.
type RepoScope struct {
	Owner              string
	Repo               string
	Branch             string
	Directory          string
	IncludeDirectories []string
	ExcludePatterns    []string
	Token              string
	// DocsBaseURL, when set, is used to resolve a chunk's docsUrl instead
	// of its githubUrl (e.g. a published documentation site mirroring this
	// repo's content).
	DocsBaseURL string
}

// Identifier returns the "<owner>/<repo>" form used to scope reconciler
// deletions.
func (s RepoScope) Identifier() string {
	return s.Owner + "/" + s.Repo
}

// BaseBlobURL returns "https://github.com/<owner>/<repo>/blob/<branch>/",
// the prefix every fetched file's SourceURL starts with.
func (s RepoScope) BaseBlobURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/", s.Owner, s.Repo, s.Branch)
}

// File is one fetched file: its raw content plus enough metadata to build
// chunk location fields.
type File struct {
	Path         string // full path within the repository
	RelativePath string // path relative to Directory, if configured
	Content      string
	SHA          string
	Size         int
	SourceURL    string
}

// defaultExcludes are always appended to a scope's configured exclude
// patterns, regardless of MIMIR_EXCLUDE_PATTERNS.
var defaultExcludes = []string{
	"*_test.go",
	"*.test.ts",
	"*.spec.ts",
	"node_modules/*",
	".git/*",
	"*.lock",
	"dist/*",
	"build/*",
}

// matchExclude reports whether p matches one exclude pattern. Patterns are
// simple glob forms: a leading "*" matches a suffix, a trailing "*" matches
// a prefix, otherwise the pattern must equal p's base filename or appear as
// a substring of p.
func matchExclude(p string, patterns []string) bool {
	base := path.Base(p)
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		switch {
		case strings.HasPrefix(pat, "*") && strings.HasSuffix(pat, "*") && len(pat) > 1:
			if strings.Contains(p, pat[1:len(pat)-1]) {
				return true
			}
		case strings.HasPrefix(pat, "*"):
			if strings.HasSuffix(p, pat[1:]) {
				return true
			}
		case strings.HasSuffix(pat, "*"):
			if strings.HasPrefix(p, pat[:len(pat)-1]) {
				return true
			}
		default:
			if base == pat || strings.Contains(p, pat) {
				return true
			}
		}
	}
	return false
}

// matchInclude reports whether p should be kept under the scope's
// IncludeDirectories filter. An empty filter keeps everything.
func matchInclude(p string, base string, includeDirs []string) bool {
	if len(includeDirs) == 0 {
		return true
	}
	for _, dir := range includeDirs {
		prefix := path.Join(base, dir)
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// allowedExtensions is the set of file extensions the chunker knows how to
// process; entries outside this set are skipped during the walk.
var allowedExtensions = map[string]bool{
	".md": true, ".mdx": true,
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".rs": true, ".java": true, ".rb": true, ".c": true, ".cpp": true, ".cc": true, ".cs": true,
}

func hasAllowedExtension(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return allowedExtensions[ext]
}

// shouldKeep applies the full filter chain (extension, exclude, include) to
// one candidate path within scope.
func shouldKeep(ctx context.Context, p string, scope RepoScope) bool {
	if !hasAllowedExtension(p) {
		return false
	}
	excludes := append(append([]string{}, defaultExcludes...), scope.ExcludePatterns...)
	if matchExclude(p, excludes) {
		return false
	}
	return matchInclude(p, scope.Directory, scope.IncludeDirectories)
}
