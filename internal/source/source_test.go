package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchExcludeSuffixPrefixSubstring(t *testing.T) {
	assert.True(t, matchExclude("pkg/foo_test.go", []string{"*_test.go"}))
	assert.True(t, matchExclude("node_modules/left-pad/index.js", []string{"node_modules/*"}))
	assert.True(t, matchExclude("pkg/internal/generated.go", []string{"internal"}))
	assert.False(t, matchExclude("pkg/foo.go", []string{"*_test.go"}))
}

func TestMatchIncludeDirectories(t *testing.T) {
	assert.True(t, matchInclude("docs/guide/intro.md", "docs", []string{"guide"}))
	assert.True(t, matchInclude("docs/guide", "docs", []string{"guide"}))
	assert.False(t, matchInclude("docs/other/intro.md", "docs", []string{"guide"}))
	assert.True(t, matchInclude("anything/here.md", "", nil))
}

func TestShouldKeepFiltersByExtension(t *testing.T) {
	scope := RepoScope{}
	assert.True(t, shouldKeep(context.Background(), "src/main.go", scope))
	assert.False(t, shouldKeep(context.Background(), "README", scope))
	assert.False(t, shouldKeep(context.Background(), "pkg/main_test.go", scope))
}

func TestRepoScopeURLHelpers(t *testing.T) {
	scope := RepoScope{Owner: "acme", Repo: "widgets", Branch: "main"}
	assert.Equal(t, "acme/widgets", scope.Identifier())
	assert.Equal(t, "https://github.com/acme/widgets/blob/main/", scope.BaseBlobURL())
}

func TestNormalizeGithubURLStripsFragment(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/widgets/blob/main/a.go",
		NormalizeGithubURL("https://github.com/acme/widgets/blob/main/a.go#L10-L20"))
	assert.Equal(t, "https://github.com/acme/widgets/blob/main/a.go",
		NormalizeGithubURL("https://github.com/acme/widgets/blob/main/a.go"))
}

func TestRepoFromGithubURL(t *testing.T) {
	assert.Equal(t, "acme/widgets", RepoFromGithubURL("https://github.com/acme/widgets/blob/main/a.go"))
	assert.Equal(t, "", RepoFromGithubURL("https://example.com/not-github"))
}
