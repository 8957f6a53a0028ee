package confpatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gopasspw/gopass/pkg/debug"
)

var reArrayIndex = regexp.MustCompile(`\[(\d+)\]`)

// Step is a single element of a parsed key path. It addresses either a
// mapping key or, if IsIndex is set, a zero-based sequence index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// String implements fmt.Stringer for debugging.
func (s Step) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}

	return s.Key
}

// ParsePath parses a dotted key path with optional bracket indices into an
// ordered list of steps.
//
// Examples:
//   - "image.tag" -> [image, tag]
//   - "jobs.build.steps[0].uses" -> [jobs, build, steps, [0], uses]
//
// Splitting alternates between dotted segments and bracketed numeric
// captures; dotted segments are then split on "." and empty segments are
// dropped. An empty path yields nil, logged as a warning. Callers must treat
// a nil path as a no-op for the operation using it.
func ParsePath(path string) []Step {
	if path == "" {
		debug.Log("empty key path, ignoring")

		return nil
	}

	steps := make([]Step, 0, 4)
	last := 0
	for _, m := range reArrayIndex.FindAllStringSubmatchIndex(path, -1) {
		steps = appendKeySteps(steps, path[last:m[0]])

		// the capture group is all digits, Atoi can not fail here
		idx, _ := strconv.Atoi(path[m[2]:m[3]])
		steps = append(steps, Step{Index: idx, IsIndex: true})

		last = m[1]
	}

	return appendKeySteps(steps, path[last:])
}

func appendKeySteps(steps []Step, segment string) []Step {
	for _, k := range strings.Split(segment, ".") {
		if k == "" {
			continue
		}
		steps = append(steps, Step{Key: k})
	}

	return steps
}

// isTopLevelKey reports whether the path addresses a single, non-indexed
// top-level mapping key.
func isTopLevelKey(steps []Step) bool {
	return len(steps) == 1 && !steps[0].IsIndex
}
