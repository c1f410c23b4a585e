// Package repoconfig parses the numbered MIMIR_GITHUB_{CODE,DOCS}_REPO_{N}_*
// environment variable families into repo scopes, plus the singular
// CODE_*/DOCS_* shorthand for the N=0 case and the bare MIMIR_GITHUB_* form
// as a fallback default code scope.
package repoconfig

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mimir-run/mimir/internal/reconcile"
	"github.com/mimir-run/mimir/internal/source"
)

// RepoConfig is one configured GitHub repository scope: either the "code"
// or "docs" half of the ingestion pipeline.
type RepoConfig struct {
	Kind               string // "code" or "docs"
	Index              int
	URL                string
	Branch             string
	Token              string
	Directory          string
	IncludeDirectories []string
	OutputDir          string
}

var githubURLPattern = regexp.MustCompile(`github\.com[:/]+([^/]+)/([^/.]+)`)

// ParseRepoURL extracts the owner and repo name from a GitHub URL (https,
// git@, or a bare "owner/repo" shorthand).
func ParseRepoURL(raw string) (owner, repo string, ok bool) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), ".git")
	if m := githubURLPattern.FindStringSubmatch(raw); m != nil {
		return m[1], m[2], true
	}
	if parts := strings.Split(raw, "/"); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1], true
	}
	return "", "", false
}

// GithubBaseURL returns the ".../blob/<branch>/" prefix every chunk's
// githubUrl is built from, or "" if the URL can't be parsed.
func (r RepoConfig) GithubBaseURL() string {
	owner, repo, ok := ParseRepoURL(r.URL)
	if !ok {
		return ""
	}
	branch := r.Branch
	if branch == "" {
		branch = "main"
	}
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/", owner, repo, branch)
}

// GithubIdentifier returns the "owner/repo" string used to scope orphan and
// stranded-chunk deletion to this repository.
func (r RepoConfig) GithubIdentifier() string {
	owner, repo, ok := ParseRepoURL(r.URL)
	if !ok {
		return ""
	}
	return owner + "/" + repo
}

// ToReconcileScope adapts this RepoConfig to the reconcile package's
// narrower RepoScope contract.
func (r RepoConfig) ToReconcileScope() reconcile.RepoScope {
	return reconcile.RepoScope{BaseURL: r.GithubBaseURL(), Identifier: r.GithubIdentifier()}
}

// ToSourceScope adapts this RepoConfig to the source package's fetch
// contract. excludePatterns is the global MIMIR_EXCLUDE_PATTERNS list,
// applied to every configured repo in addition to source's own defaults.
func (r RepoConfig) ToSourceScope(excludePatterns []string) source.RepoScope {
	owner, repo, _ := ParseRepoURL(r.URL)
	branch := r.Branch
	if branch == "" {
		branch = "main"
	}
	return source.RepoScope{
		Owner:              owner,
		Repo:               repo,
		Branch:             branch,
		Directory:          r.Directory,
		IncludeDirectories: r.IncludeDirectories,
		ExcludePatterns:    excludePatterns,
		Token:              r.Token,
	}
}

// Load scans environment variables (via getenv, so tests don't touch the
// real process environment) for code and docs repo scopes, in declaration
// order: the N=0 scope first (numbered REPO_0 form, else the singular
// shorthand, else - for code only - the bare MIMIR_GITHUB_* form), then
// REPO_1, REPO_2, ... until a gap is found.
func Load(getenv func(string) string) ([]RepoConfig, error) {
	var out []RepoConfig
	out = append(out, loadKind(getenv, "CODE")...)
	out = append(out, loadKind(getenv, "DOCS")...)
	return out, nil
}

func loadKind(getenv func(string) string, kind string) []RepoConfig {
	var out []RepoConfig

	prefix0 := fmt.Sprintf("MIMIR_GITHUB_%s_REPO_0_", kind)
	url0 := getenv(prefix0 + "URL")
	if url0 == "" {
		prefix0 = fmt.Sprintf("MIMIR_GITHUB_%s_", kind)
		url0 = getenv(prefix0 + "URL")
	}
	if url0 == "" && kind == "CODE" {
		prefix0 = "MIMIR_GITHUB_"
		url0 = getenv(prefix0 + "URL")
	}
	if url0 != "" {
		out = append(out, buildRepoConfig(getenv, prefix0, kind, 0, url0))
	}

	for n := 1; ; n++ {
		prefix := fmt.Sprintf("MIMIR_GITHUB_%s_REPO_%d_", kind, n)
		url := getenv(prefix + "URL")
		if url == "" {
			break
		}
		out = append(out, buildRepoConfig(getenv, prefix, kind, n, url))
	}

	return out
}

func buildRepoConfig(getenv func(string) string, prefix, kind string, index int, url string) RepoConfig {
	branch := getenv(prefix + "BRANCH")
	if branch == "" {
		branch = "main"
	}

	var includeDirs []string
	if raw := getenv(prefix + "INCLUDE_DIRECTORIES"); raw != "" {
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(d); d != "" {
				includeDirs = append(includeDirs, d)
			}
		}
	}

	return RepoConfig{
		Kind:               strings.ToLower(kind),
		Index:              index,
		URL:                url,
		Branch:             branch,
		Token:              getenv(prefix + "TOKEN"),
		Directory:          getenv(prefix + "DIRECTORY"),
		IncludeDirectories: includeDirs,
		OutputDir:          getenv(prefix + "OUTPUT_DIR"),
	}
}
