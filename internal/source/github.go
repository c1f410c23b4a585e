package source

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentDownloads bounds in-flight raw-file downloads per Fetch
// call, matching the spec's default of 8 in flight.
const maxConcurrentDownloads = 8

// Fetcher walks a GitHub repository tree and downloads the raw bytes of
// every file its scope keeps.
type Fetcher struct {
	newClient func(scope RepoScope) *github.Client
}

// NewFetcher builds a Fetcher whose GitHub client is constructed fresh per
// scope so each repository can carry its own token.
func NewFetcher() *Fetcher {
	return &Fetcher{newClient: newGithubClient}
}

func newGithubClient(scope RepoScope) *github.Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if scope.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: scope.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = 30 * time.Second
	}
	return github.NewClient(httpClient)
}

// Fetch walks scope's repository tree (recursive tree listing, falling
// back to a recursive contents walk on failure), applies the filter chain,
// and downloads the kept files' raw bytes with bounded parallelism.
func (f *Fetcher) Fetch(ctx context.Context, scope RepoScope) ([]File, error) {
	client := f.newClient(scope)

	paths, err := f.listTree(ctx, client, scope)
	if err != nil {
		paths, err = f.walkContents(ctx, client, scope, scope.Directory)
		if err != nil {
			return nil, fmt.Errorf("listing %s/%s tree: %w", scope.Owner, scope.Repo, err)
		}
	}

	var kept []string
	for _, p := range paths {
		if shouldKeep(ctx, p, scope) {
			kept = append(kept, p)
		}
	}

	files := make([]File, len(kept))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)

	for i, p := range kept {
		i, p := i, p
		g.Go(func() error {
			content, sha, size, err := f.download(gctx, client, scope, p)
			if err != nil {
				return fmt.Errorf("downloading %s: %w", p, err)
			}
			rel := strings.TrimPrefix(p, scope.Directory)
			rel = strings.TrimPrefix(rel, "/")
			files[i] = File{
				Path:         p,
				RelativePath: rel,
				Content:      content,
				SHA:          sha,
				Size:         size,
				SourceURL:    scope.BaseBlobURL() + p,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// listTree lists every blob path in scope's repository via a single
// recursive tree listing call.
func (f *Fetcher) listTree(ctx context.Context, client *github.Client, scope RepoScope) ([]string, error) {
	ref, _, err := client.Git.GetRef(ctx, scope.Owner, scope.Repo, "refs/heads/"+scope.Branch)
	if err != nil {
		return nil, fmt.Errorf("resolving branch ref: %w", err)
	}

	tree, _, err := client.Git.GetTree(ctx, scope.Owner, scope.Repo, ref.GetObject().GetSHA(), true)
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		paths = append(paths, entry.GetPath())
	}
	return paths, nil
}

// walkContents recursively lists repository contents via the contents API,
// used only when the tree-listing call fails.
func (f *Fetcher) walkContents(ctx context.Context, client *github.Client, scope RepoScope, dir string) ([]string, error) {
	_, entries, _, err := client.Repositories.GetContents(ctx, scope.Owner, scope.Repo, dir, &github.RepositoryContentGetOptions{Ref: scope.Branch})
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		switch entry.GetType() {
		case "dir":
			sub, err := f.walkContents(ctx, client, scope, entry.GetPath())
			if err != nil {
				return nil, err
			}
			paths = append(paths, sub...)
		case "file":
			paths = append(paths, entry.GetPath())
		}
	}
	return paths, nil
}

// download fetches one file's raw content via the contents API.
func (f *Fetcher) download(ctx context.Context, client *github.Client, scope RepoScope, p string) (content, sha string, size int, err error) {
	fileContent, _, _, err := client.Repositories.GetContents(ctx, scope.Owner, scope.Repo, p, &github.RepositoryContentGetOptions{Ref: scope.Branch})
	if err != nil {
		return "", "", 0, err
	}
	if fileContent == nil {
		return "", "", 0, fmt.Errorf("%s is not a file", p)
	}
	decoded, err := fileContent.GetContent()
	if err != nil {
		return "", "", 0, fmt.Errorf("decoding content: %w", err)
	}
	return decoded, fileContent.GetSHA(), fileContent.GetSize(), nil
}

// NormalizeGithubURL strips a "#"-fragment from a githubUrl, used when
// comparing a stored row's URL against the active set during reconciliation.
func NormalizeGithubURL(url string) string {
	if i := strings.IndexByte(url, '#'); i != -1 {
		return url[:i]
	}
	return url
}

// RepoFromGithubURL extracts "<owner>/<repo>" from a blob URL of the form
// "https://github.com/<owner>/<repo>/blob/<branch>/<path>", or "" if the
// URL doesn't match that shape.
func RepoFromGithubURL(url string) string {
	const marker = "github.com/"
	idx := strings.Index(url, marker)
	if idx == -1 {
		return ""
	}
	rest := url[idx+len(marker):]
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		return ""
	}
	return path.Join(parts[0], parts[1])
}
