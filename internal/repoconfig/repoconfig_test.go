package repoconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestParseRepoURLHandlesHTTPSForm(t *testing.T) {
	owner, repo, ok := ParseRepoURL("https://github.com/mimir-run/mimir")
	require.True(t, ok)
	assert.Equal(t, "mimir-run", owner)
	assert.Equal(t, "mimir", repo)
}

func TestParseRepoURLHandlesShorthandForm(t *testing.T) {
	owner, repo, ok := ParseRepoURL("mimir-run/mimir")
	require.True(t, ok)
	assert.Equal(t, "mimir-run", owner)
	assert.Equal(t, "mimir", repo)
}

func TestParseRepoURLStripsDotGit(t *testing.T) {
	owner, repo, ok := ParseRepoURL("https://github.com/mimir-run/mimir.git")
	require.True(t, ok)
	assert.Equal(t, "mimir", repo)
	assert.Equal(t, "mimir-run", owner)
}

func TestLoadPrefersNumberedRepoZeroOverShorthand(t *testing.T) {
	scopes, err := Load(envFrom(map[string]string{
		"MIMIR_GITHUB_CODE_REPO_0_URL": "https://github.com/o/numbered",
		"MIMIR_GITHUB_CODE_URL":        "https://github.com/o/shorthand",
	}))
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "https://github.com/o/numbered", scopes[0].URL)
}

func TestLoadFallsBackToShorthand(t *testing.T) {
	scopes, err := Load(envFrom(map[string]string{
		"MIMIR_GITHUB_CODE_URL": "https://github.com/o/shorthand",
	}))
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "code", scopes[0].Kind)
}

func TestLoadCodeFallsBackToBareGithubURL(t *testing.T) {
	scopes, err := Load(envFrom(map[string]string{
		"MIMIR_GITHUB_URL": "https://github.com/o/bare",
	}))
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "code", scopes[0].Kind)
	assert.Equal(t, "https://github.com/o/bare", scopes[0].URL)
}

func TestLoadDoesNotApplyBareGithubURLToDocs(t *testing.T) {
	scopes, err := Load(envFrom(map[string]string{
		"MIMIR_GITHUB_URL": "https://github.com/o/bare",
	}))
	require.NoError(t, err)
	for _, s := range scopes {
		assert.NotEqual(t, "docs", s.Kind)
	}
}

func TestLoadCollectsNumberedReposUntilGap(t *testing.T) {
	scopes, err := Load(envFrom(map[string]string{
		"MIMIR_GITHUB_CODE_REPO_0_URL": "https://github.com/o/r0",
		"MIMIR_GITHUB_CODE_REPO_1_URL": "https://github.com/o/r1",
		"MIMIR_GITHUB_CODE_REPO_2_URL": "https://github.com/o/r2",
		"MIMIR_GITHUB_CODE_REPO_4_URL": "https://github.com/o/r4-should-be-unreachable",
	}))
	require.NoError(t, err)
	require.Len(t, scopes, 3)
	assert.Equal(t, "https://github.com/o/r2", scopes[2].URL)
}

func TestLoadParsesIncludeDirectoriesAndDefaultsBranch(t *testing.T) {
	scopes, err := Load(envFrom(map[string]string{
		"MIMIR_GITHUB_DOCS_URL":                "https://github.com/o/docs",
		"MIMIR_GITHUB_DOCS_INCLUDE_DIRECTORIES": "guides, reference ,api",
	}))
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "main", scopes[0].Branch)
	assert.Equal(t, []string{"guides", "reference", "api"}, scopes[0].IncludeDirectories)
}

func TestGithubBaseURLAndIdentifier(t *testing.T) {
	rc := RepoConfig{URL: "https://github.com/o/r", Branch: "develop"}
	assert.Equal(t, "https://github.com/o/r/blob/develop/", rc.GithubBaseURL())
	assert.Equal(t, "o/r", rc.GithubIdentifier())
}

func TestToReconcileScope(t *testing.T) {
	rc := RepoConfig{URL: "https://github.com/o/r"}
	scope := rc.ToReconcileScope()
	assert.Equal(t, "https://github.com/o/r/blob/main/", scope.BaseURL)
	assert.Equal(t, "o/r", scope.Identifier)
}

func TestToSourceScope(t *testing.T) {
	rc := RepoConfig{
		URL:                "https://github.com/o/r",
		Branch:             "develop",
		Directory:          "src",
		IncludeDirectories: []string{"pkg"},
		Token:              "ghp_token",
	}
	scope := rc.ToSourceScope([]string{"*.test.ts"})
	assert.Equal(t, "o", scope.Owner)
	assert.Equal(t, "r", scope.Repo)
	assert.Equal(t, "develop", scope.Branch)
	assert.Equal(t, "src", scope.Directory)
	assert.Equal(t, []string{"pkg"}, scope.IncludeDirectories)
	assert.Equal(t, []string{"*.test.ts"}, scope.ExcludePatterns)
	assert.Equal(t, "ghp_token", scope.Token)
}

func TestToSourceScopeDefaultsBranchToMain(t *testing.T) {
	rc := RepoConfig{URL: "https://github.com/o/r"}
	scope := rc.ToSourceScope(nil)
	assert.Equal(t, "main", scope.Branch)
}
