package confpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertEnvKey(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		in    string
		key   string
		value string
		want  string
	}{
		"update existing": {
			in:    "API_KEY=abc\nDEBUG=false\n",
			key:   "API_KEY",
			value: "xyz",
			want:  "API_KEY=xyz\nDEBUG=false\n",
		},
		"append missing": {
			in:    "API_KEY=abc\n",
			key:   "DEBUG",
			value: "true",
			want:  "API_KEY=abc\nDEBUG=true\n",
		},
		"append adds missing newline first": {
			in:    "API_KEY=abc",
			key:   "DEBUG",
			value: "true",
			want:  "API_KEY=abc\nDEBUG=true\n",
		},
		"empty file": {
			in:    "",
			key:   "DEBUG",
			value: "true",
			want:  "DEBUG=true\n",
		},
		"exact key token only": {
			// API_KEY must not rewrite API_KEY_VERSION
			in:    "API_KEY_VERSION=2\n",
			key:   "API_KEY",
			value: "xyz",
			want:  "API_KEY_VERSION=2\nAPI_KEY=xyz\n",
		},
		"spaces around equals": {
			in:    "API_KEY = abc\n",
			key:   "API_KEY",
			value: "xyz",
			want:  "API_KEY=xyz\n",
		},
		"only first occurrence updated": {
			in:    "A=1\nA=2\n",
			key:   "A",
			value: "3",
			want:  "A=3\nA=2\n",
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, upsertEnvKey(tc.in, tc.key, tc.value))
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	in := "API_KEY=abc\nENDPOINT=http://old.example.com\n"

	out, changed := applyEnv(in, []Operation{
		{Action: ActionUpdateKey, Path: "API_KEY_VERSION", Value: 2},
		{Action: ActionReplace, Pattern: `http://old\.example\.com`, Replacement: "https://new.example.com"},
		{Action: ActionDeleteKey, Path: "API_KEY"},
	})
	require.True(t, changed)
	assert.Equal(t, "API_KEY=abc\nENDPOINT=https://new.example.com\nAPI_KEY_VERSION=2\n", out)

	// a second pass settles
	out, changed = applyEnv(out, []Operation{
		{Action: ActionUpdateKey, Path: "API_KEY_VERSION", Value: 2},
	})
	assert.False(t, changed)
	assert.Equal(t, "API_KEY=abc\nENDPOINT=https://new.example.com\nAPI_KEY_VERSION=2\n", out)
}

func TestScalarString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", scalarString(nil))
	assert.Equal(t, "abc", scalarString("abc"))
	assert.Equal(t, "2", scalarString(2))
	assert.Equal(t, "true", scalarString(true))
}
