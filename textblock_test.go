package confpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeleteBlock(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		in      string
		key     string
		want    string
		removed bool
	}{
		"inline value": {
			in:      "replicaCount: 3\nimage: nginx\n",
			key:     "replicaCount",
			want:    "image: nginx\n",
			removed: true,
		},
		"nested block": {
			in: `replicaCount: 2
tolerations:
  - key: role
    operator: Exists
image:
  repository: nginx
`,
			key: "tolerations",
			want: `replicaCount: 2
image:
  repository: nginx
`,
			removed: true,
		},
		"sequence items at key indent": {
			in: `tolerations:
- key: role
- key: zone
image: nginx
`,
			key: "tolerations",
			want: `image: nginx
`,
			removed: true,
		},
		"sibling key untouched": {
			in: `affinity:
  nodeAffinity: {}
affinityOverride: keep
`,
			key: "affinity",
			want: `affinityOverride: keep
`,
			removed: true,
		},
		"blank line inside block": {
			in: `jobs:
  build:
    steps: []

  test:
    steps: []
next: 1
`,
			key: "jobs",
			want: `next: 1
`,
			removed: true,
		},
		"blank line ends block": {
			in: `tolerations:
  - key: role

image: nginx
`,
			key: "tolerations",
			want: `
image: nginx
`,
			removed: true,
		},
		"comments around block survive": {
			in: `# keep me
replicaCount: 3 # inline comment stays with the line
tolerations:
  - key: role
# trailing comment
`,
			key: "tolerations",
			want: `# keep me
replicaCount: 3 # inline comment stays with the line
# trailing comment
`,
			removed: true,
		},
		"key with comment only is a block": {
			in: `tolerations: # see ops runbook
  - key: role
image: nginx
`,
			key: "tolerations",
			want: `image: nginx
`,
			removed: true,
		},
		"no match": {
			in:      "image: nginx\n",
			key:     "tolerations",
			want:    "image: nginx\n",
			removed: false,
		},
		"prefix key does not match": {
			in:      "replicaCountMax: 5\n",
			key:     "replicaCount",
			want:    "replicaCountMax: 5\n",
			removed: false,
		},
		"indented key": {
			in: `spec:
  tolerations:
    - key: role
  image: nginx
`,
			key: "tolerations",
			want: `spec:
  image: nginx
`,
			removed: true,
		},
		"no trailing newline preserved": {
			in:      "a: 1\nb: 2",
			key:     "a",
			want:    "b: 2",
			removed: true,
		},
		"only first occurrence": {
			in:      "a: 1\nb: 2\na: 3\n",
			key:     "a",
			want:    "b: 2\na: 3\n",
			removed: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, removed := DeleteBlock(tc.in, tc.key)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.removed, removed)
		})
	}
}

func TestDeleteBlockAll(t *testing.T) {
	t.Parallel()

	in := "a: 1\nb: 2\na: 3\n"

	got, removed := deleteBlockAll(in, "a")
	assert.True(t, removed)
	assert.Equal(t, "b: 2\n", got)

	got, removed = deleteBlockAll(in, "c")
	assert.False(t, removed)
	assert.Equal(t, in, got)
}
