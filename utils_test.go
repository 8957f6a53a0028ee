package confpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobMatch(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		pattern string
		in      string
		want    bool
	}{
		{"values.yaml", "values.yaml", true},
		{"values.yaml", "deployment/values.yaml", false},
		{"*.yaml", "values.yaml", true},
		{"*.yaml", "deployment/values.yaml", false},
		{"**/values.yaml", "deployment/staging/values.yaml", true},
		{"deployment/**", "deployment/staging/values.yaml", true},
		{"deployment/*.yaml", "deployment/values.yaml", true},
		{"deployment/*.yaml", "deployment/staging/values.yaml", false},
		{"**/Jenkinsfile", "services/api/Jenkinsfile", true},
	} {
		ok, err := globMatch(tc.pattern, tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "pattern %q against %q", tc.pattern, tc.in)
	}
}

func TestIsGlobPattern(t *testing.T) {
	t.Parallel()

	assert.True(t, isGlobPattern("**/values.yaml"))
	assert.True(t, isGlobPattern("config.{yaml,yml}"))
	assert.False(t, isGlobPattern("deployment/values.yaml"))
	assert.False(t, isGlobPattern(".env"))
}

func TestResolveTargets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, rel := range []string{
		"values.yaml",
		"deployment/values.yaml",
		"deployment/staging/values.yaml",
		"node_modules/pkg/values.yaml",
		"vendor/lib/values.yaml",
		".git/values.yaml",
	} {
		writeFile(t, dir, rel, "a: 1\n")
	}

	got := resolveTargets(dir, "**/values.yaml")
	assert.ElementsMatch(t, []string{
		"deployment/values.yaml",
		"deployment/staging/values.yaml",
	}, got)

	// plain paths are passed through untouched, even when absent
	assert.Equal(t, []string{"missing.json"}, resolveTargets(dir, "missing.json"))
}
