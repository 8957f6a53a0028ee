package confpatch

import "strings"

// detectIndentAndSequence inspects raw YAML and returns the base indentation
// width plus whether sequences under a mapping key are indented one level
// (true) or "indentless" (false). The structural re-serialization path uses
// this so a rewritten document keeps the style of the original.
func detectIndentAndSequence(content string) (int, bool) {
	indent := detectIndent(content)
	lines := strings.Split(content, "\n")
	votes := 0 // >0 prefer indented sequences, <0 prefer indentless

	for i := 0; i < len(lines); i++ {
		if isBlankOrComment(lines[i]) {
			continue
		}
		if !endsWithMappingKey(lines[i]) {
			continue
		}
		keyIndent := leadingSpaces(lines[i])
		// look ahead to the first non-blank, non-comment line
		for j := i + 1; j < len(lines); j++ {
			if isBlankOrComment(lines[j]) {
				continue
			}
			if strings.HasPrefix(strings.TrimLeft(lines[j], " "), "-") {
				switch leadingSpaces(lines[j]) {
				case keyIndent + indent:
					votes++
				case keyIndent:
					votes--
				}
			}

			break
		}
	}

	if votes < 0 {
		return indent, false
	}

	// no evidence either way: indented sequences are the common style in
	// Helm and Kubernetes manifests
	return indent, true
}

// detectIndent returns the GCD of all non-zero leading-space counts, which
// recovers the base indentation step of the document. Defaults to 2.
func detectIndent(content string) int {
	result := 0
	for _, line := range strings.Split(content, "\n") {
		if isBlankOrComment(line) {
			continue
		}
		n := leadingSpaces(line)
		if n == 0 {
			continue
		}
		if result == 0 {
			result = n

			continue
		}
		result = gcd(result, n)
		if result == 1 {
			break
		}
	}

	if result > 0 && result <= 8 {
		return result
	}

	return 2
}

func isBlankOrComment(line string) bool {
	t := strings.TrimSpace(line)

	return t == "" || strings.HasPrefix(t, "#")
}

// endsWithMappingKey reports whether the line is a block mapping key of the
// form "key:" possibly followed by spaces and/or a comment.
func endsWithMappingKey(line string) bool {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return false
	}
	rest := strings.TrimSpace(line[idx+1:])

	return rest == "" || strings.HasPrefix(rest, "#")
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}

func leadingSpaces(line string) int {
	i := 0
	for i < len(line) && line[i] == ' ' {
		i++
	}

	return i
}
