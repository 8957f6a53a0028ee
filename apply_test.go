package confpatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yamlv3 "gopkg.in/yaml.v3"
)

func TestApplyText(t *testing.T) {
	t.Parallel()

	ops := []Operation{{
		Action:      ActionReplace,
		Pattern:     `@Library\('shared-lib@v\d+'\)`,
		Replacement: "@Library('shared-lib@v3')",
	}}

	out, changed := applyText("@Library('shared-lib@v2')\npipeline {}\n", ops)
	require.True(t, changed)
	assert.Equal(t, "@Library('shared-lib@v3')\npipeline {}\n", out)

	// re-applying matches the replacement itself and changes nothing
	out, changed = applyText(out, ops)
	assert.False(t, changed)
	assert.Equal(t, "@Library('shared-lib@v3')\npipeline {}\n", out)
}

func TestApplyTextIgnoresStructuralOps(t *testing.T) {
	t.Parallel()

	out, changed := applyText("hello\n", []Operation{
		{Action: ActionUpdateKey, Path: "a", Value: 1},
		{Action: ActionDeleteKey, Path: "a"},
	})
	assert.False(t, changed)
	assert.Equal(t, "hello\n", out)
}

func TestApplyTextBadPattern(t *testing.T) {
	t.Parallel()

	out, changed := applyText("hello\n", []Operation{
		{Action: ActionReplace, Pattern: "([", Replacement: "x"},
	})
	assert.False(t, changed)
	assert.Equal(t, "hello\n", out)
}

func TestApplyJSON(t *testing.T) {
	t.Parallel()

	in := []byte(`{
  "name": "svc",
  "scripts": {
    "lint": "eslint",
    "test": "jest"
  }
}
`)

	out, changed := applyJSON(in, []Operation{
		{Action: ActionUpdateKey, Path: "scripts.deploy", Value: "make deploy"},
		{Action: ActionDeleteKey, Path: "scripts.lint"},
	})
	require.True(t, changed)

	var doc map[string]any
	require.NoError(t, yamlv3.Unmarshal(out, &doc))
	assert.Equal(t, map[string]any{
		"name": "svc",
		"scripts": map[string]any{
			"test":   "jest",
			"deploy": "make deploy",
		},
	}, doc)
}

func TestApplyJSONReindentOnlyIsNoChange(t *testing.T) {
	t.Parallel()

	// the document would be rewritten with different whitespace, but nothing
	// structural changed, so the file must be reported unmodified
	in := []byte(`{"name":"svc","version":"1.0.0"}`)

	_, changed := applyJSON(in, []Operation{
		{Action: ActionUpdateKey, Path: "version", Value: "1.0.0"},
	})
	assert.False(t, changed)
}

func TestApplyJSONInvalid(t *testing.T) {
	t.Parallel()

	_, changed := applyJSON([]byte("{not json"), []Operation{
		{Action: ActionUpdateKey, Path: "a", Value: 1},
	})
	assert.False(t, changed)
}

func TestApplyYAMLBlocks(t *testing.T) {
	t.Parallel()

	in := []byte(`replicaCount: 2
tolerations:
  - key: role
    operator: Exists
affinity:
  nodeAffinity: {}
`)

	out, changed := applyYAML(in, []Operation{
		{Action: ActionDeleteKey, Path: "tolerations", Value: []any{map[string]any{"key": "role"}}},
		{Action: ActionDeleteKey, Path: "affinity"},
	})
	require.True(t, changed)
	assert.Equal(t, "replicaCount: 2\n", string(out))
}

func TestApplyYAMLBlocksPredicateMiss(t *testing.T) {
	t.Parallel()

	in := []byte(`tolerations:
  - key: zone
`)

	out, changed := applyYAML(in, []Operation{
		{Action: ActionDeleteKey, Path: "tolerations", Value: []any{map[string]any{"key": "role"}}},
	})
	assert.False(t, changed)
	assert.Equal(t, string(in), string(out))
}

func TestApplyYAMLBlocksPreserveUntouchedLines(t *testing.T) {
	t.Parallel()

	in := []byte(`# deployment values
replicaCount: 2

tolerations:
  - key: role
image:
  repository: nginx   # pinned
`)

	out, changed := applyYAML(in, []Operation{
		{Action: ActionDeleteKey, Path: "tolerations"},
	})
	require.True(t, changed)
	assert.Equal(t, `# deployment values
replicaCount: 2

image:
  repository: nginx   # pinned
`, string(out))
}

func TestApplyYAMLStructural(t *testing.T) {
	t.Parallel()

	in := []byte(`image:
  repository: nginx
  tag: "1.24"
replicaCount: 2
`)

	out, changed := applyYAML(in, []Operation{
		{Action: ActionUpdateKey, Path: "image.tag", Value: "1.25"},
		{Action: ActionUpdateKey, Path: "resources.limits.cpu", Value: "500m"},
	})
	require.True(t, changed)

	var doc map[string]any
	require.NoError(t, yamlv3.Unmarshal(out, &doc))
	assert.Equal(t, "1.25", doc["image"].(map[string]any)["tag"])
	assert.Equal(t, "500m", doc["resources"].(map[string]any)["limits"].(map[string]any)["cpu"])
	assert.Equal(t, 2, doc["replicaCount"])
}

func TestApplyYAMLStructuralKeepsKeyOrder(t *testing.T) {
	t.Parallel()

	in := []byte(`zebra: 1
alpha: 2
middle: 3
`)

	out, changed := applyYAML(in, []Operation{
		{Action: ActionUpdateKey, Path: "middle", Value: 4},
	})
	require.True(t, changed)
	assert.Equal(t, "zebra: 1\nalpha: 2\nmiddle: 4\n", string(out))
}

func TestApplyYAMLStructuralNoChange(t *testing.T) {
	t.Parallel()

	in := []byte(`image:
  tag: "1.24"
`)

	_, changed := applyYAML(in, []Operation{
		{Action: ActionUpdateKey, Path: "image.tag", Value: "1.24"},
		{Action: ActionDeleteKey, Path: "missing"},
	})
	assert.False(t, changed)
}

func TestApplyYAMLStructuralNestedDelete(t *testing.T) {
	t.Parallel()

	in := []byte(`jobs:
  build:
    steps:
      - uses: actions/checkout@v3
      - run: make
`)

	out, changed := applyYAML(in, []Operation{
		{Action: ActionDeleteKey, Path: "jobs.build.steps[0]"},
		{Action: ActionUpdateKey, Path: "jobs.build.steps[1]", Value: map[string]any{"run": "make test"}},
	})
	require.True(t, changed)

	var doc map[string]any
	require.NoError(t, yamlv3.Unmarshal(out, &doc))
	steps := doc["jobs"].(map[string]any)["build"].(map[string]any)["steps"].([]any)
	require.Len(t, steps, 2)
	assert.Equal(t, map[string]any{"run": "make"}, steps[0])
	assert.Equal(t, map[string]any{"run": "make test"}, steps[1])
}

func TestEngineApply(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "deployment/values.yaml", "replicaCount: 2\ntolerations:\n  - key: role\n")
	writeFile(t, dir, "deployment/staging/values.yaml", "tolerations:\n  - key: role\n")
	writeFile(t, dir, ".env", "API_KEY=abc\n")
	writeFile(t, dir, "node_modules/pkg/values.yaml", "tolerations:\n  - key: role\n")

	e := New([]Rule{
		{
			File: "**/values.yaml",
			Type: TypeYAML,
			Changes: []Operation{
				{Action: ActionDeleteKey, Path: "tolerations"},
			},
		},
		{
			File: ".env",
			Type: TypeEnv,
			Changes: []Operation{
				{Action: ActionUpdateKey, Path: "API_KEY_VERSION", Value: 2},
			},
		},
		{
			File: "missing.json",
			Type: TypeJSON,
			Changes: []Operation{
				{Action: ActionUpdateKey, Path: "a", Value: 1},
			},
		},
	})

	changed := e.Apply(dir)
	assert.Equal(t, []string{".env", "deployment/staging/values.yaml", "deployment/values.yaml"}, changed)

	assert.Equal(t, "replicaCount: 2\n", readFile(t, dir, "deployment/values.yaml"))
	assert.Equal(t, "API_KEY=abc\nAPI_KEY_VERSION=2\n", readFile(t, dir, ".env"))
	// dependency directories are never descended into
	assert.Equal(t, "tolerations:\n  - key: role\n", readFile(t, dir, "node_modules/pkg/values.yaml"))

	// the whole run is idempotent
	assert.Empty(t, e.Apply(dir))
}

func TestEngineApplyDryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "values.yaml", "tolerations:\n  - key: role\n")

	e := New([]Rule{{
		File: "values.yaml",
		Type: TypeYAML,
		Changes: []Operation{
			{Action: ActionDeleteKey, Path: "tolerations"},
		},
	}})
	e.DryRun = true

	changed := e.Apply(dir)
	assert.Equal(t, []string{"values.yaml"}, changed)
	// nothing is written back
	assert.Equal(t, "tolerations:\n  - key: role\n", readFile(t, dir, "values.yaml"))
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()

	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()

	buf, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)

	return string(buf)
}
