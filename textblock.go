package confpatch

import (
	"strings"

	"github.com/gopasspw/gopass/pkg/debug"
)

// DeleteBlock removes the first occurrence of the mapping key and its entire
// value block from raw YAML text, without parsing the document. Every line
// that is not part of the block is passed through verbatim, including
// comments, blank lines and key order, which is the whole point of editing
// in text space. The trailing-newline convention of the input is preserved.
//
// The key may sit at any fixed indentation, but it must be a block mapping
// key of the form "<indent><key>:" or "<indent><key>: <value>". A line with
// an inline value is a one-line block and only that line is removed.
// Otherwise consumption continues over lines that are blank (when more block
// content follows), indented deeper than the key, or sequence items at the
// key's own indentation, which YAML's block-sequence convention allows. The
// first same-or-lower indented line that is not a sequence item ends the
// block: a sibling key or a dedent is never deleted.
//
// It returns the resulting text and whether a block was removed. Callers
// that need to remove repeated occurrences of the same key invoke it in a
// loop until it reports no match.
func DeleteBlock(content, key string) (string, bool) {
	hadTrailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	if hadTrailingNewline {
		lines = lines[:len(lines)-1]
	}

	out := make([]string, 0, len(lines))
	removed := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if removed || !matchesBlockKey(line, key) {
			out = append(out, line)

			continue
		}

		blockIndent := leadingSpaces(line)
		removed = true

		if hasInlineValue(line, key) {
			// the whole value sits on this line, nothing below belongs to it
			continue
		}

		// consume the value block
		for i+1 < len(lines) {
			next := lines[i+1]
			trimmed := strings.TrimSpace(next)

			if trimmed == "" {
				// blank lines belong to the block only if more block
				// content follows, otherwise they separate the next key
				if !blockContinuesAfterBlanks(lines, i+1, blockIndent) {
					break
				}
				i++

				continue
			}

			indent := leadingSpaces(next)
			if indent > blockIndent {
				i++

				continue
			}
			if indent == blockIndent && strings.HasPrefix(trimmed, "-") {
				i++

				continue
			}

			break
		}
	}

	if !removed {
		return content, false
	}

	result := strings.Join(out, "\n")
	if hadTrailingNewline {
		result += "\n"
	}

	return result, true
}

// deleteBlockAll removes every occurrence of key, one block per pass.
func deleteBlockAll(content, key string) (string, bool) {
	removed := false
	for {
		next, ok := DeleteBlock(content, key)
		if !ok {
			break
		}
		debug.V(1).Log("removed block %q", key)
		content = next
		removed = true
	}

	return content, removed
}

// matchesBlockKey reports whether the line is a block mapping entry for key,
// i.e. "<indent><key>:" optionally followed by an inline value or a comment.
func matchesBlockKey(line, key string) bool {
	stripped := strings.TrimSpace(line)

	return stripped == key+":" || strings.HasPrefix(stripped, key+": ")
}

// hasInlineValue reports whether the matched key line carries its value
// inline after the colon. A trailing comment does not count as a value.
func hasInlineValue(line, key string) bool {
	stripped := strings.TrimSpace(line)
	rest := strings.TrimSpace(strings.TrimPrefix(stripped, key+":"))

	return rest != "" && !strings.HasPrefix(rest, "#")
}

// blockContinuesAfterBlanks peeks past a run of blank lines starting at pos
// and reports whether the first non-blank line still belongs to a block of
// the given indentation.
func blockContinuesAfterBlanks(lines []string, pos, blockIndent int) bool {
	for ; pos < len(lines); pos++ {
		trimmed := strings.TrimSpace(lines[pos])
		if trimmed == "" {
			continue
		}
		indent := leadingSpaces(lines[pos])

		return indent > blockIndent || (indent == blockIndent && strings.HasPrefix(trimmed, "-"))
	}

	return false
}
