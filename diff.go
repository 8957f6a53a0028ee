package confpatch

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineDiff renders a simple line-based diff between two versions of a file,
// used when previewing a dry run. Unchanged lines are prefixed with two
// spaces, removals with "- " and additions with "+ ".
func lineDiff(before, after string) string {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
