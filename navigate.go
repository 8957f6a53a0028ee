package confpatch

import (
	gyaml "github.com/goccy/go-yaml"
	"github.com/gopasspw/gopass/pkg/debug"
)

// navigator walks a parsed document (nested mappings, sequences and scalars)
// along a list of steps. Mappings are either ordered gyaml.MapSlice values
// (YAML documents, key order survives re-serialization) or plain
// map[string]any (JSON documents). The ordered flag decides which flavor is
// created when a write has to materialize missing intermediate containers.
//
// Navigation never panics and never coerces: any type mismatch between a
// step and the node it is applied to is logged and turns the operation into
// a no-op.
type navigator struct {
	ordered bool
}

func (n navigator) newMapping() any {
	if n.ordered {
		return gyaml.MapSlice{}
	}

	return map[string]any{}
}

// set writes value at the end of steps, creating missing intermediate
// mappings and padding sequences with empty mappings as needed. It returns
// the updated node and whether the write took effect. Containers created for
// intermediate steps are only kept when the write below them succeeded, so a
// failed operation leaves the document as it was.
//
// At the final step a sequence index equal to the current length appends;
// an index beyond that is a logged no-op.
func (n navigator) set(node any, steps []Step, value any) (any, bool) {
	if len(steps) == 0 {
		return value, true
	}

	st := steps[0]
	if st.IsIndex {
		return n.setIndex(node, st, steps[1:], value)
	}

	return n.setKey(node, st, steps[1:], value)
}

func (n navigator) setIndex(node any, st Step, rest []Step, value any) (any, bool) {
	seq, ok := node.([]any)
	if node == nil {
		seq, ok = []any{}, true
	}
	if !ok {
		debug.Log("can not index [%d] into %T, skipping operation", st.Index, node)

		return node, false
	}

	if len(rest) == 0 {
		switch {
		case st.Index < len(seq):
			seq[st.Index] = value
		case st.Index == len(seq):
			seq = append(seq, value)
		default:
			debug.Log("index [%d] is past the end of a sequence of %d, skipping operation", st.Index, len(seq))

			return seq, false
		}

		return seq, true
	}

	// pad intermediate gaps with empty mappings so the index exists
	padded := seq
	for st.Index >= len(padded) {
		padded = append(padded, n.newMapping())
	}

	child, changed := n.set(padded[st.Index], rest, value)
	if !changed {
		return seq, false
	}
	padded[st.Index] = child

	return padded, true
}

func (n navigator) setKey(node any, st Step, rest []Step, value any) (any, bool) {
	if node == nil {
		node = n.newMapping()
	}

	switch m := node.(type) {
	case gyaml.MapSlice:
		for i := range m {
			if keyString(m[i].Key) != st.Key {
				continue
			}
			child, changed := n.set(m[i].Value, rest, value)
			if changed {
				m[i].Value = child
			}

			return m, changed
		}

		child, changed := n.set(nil, rest, value)
		if !changed {
			return m, false
		}

		return append(m, gyaml.MapItem{Key: st.Key, Value: child}), true
	case map[string]any:
		child, changed := n.set(m[st.Key], rest, value)
		if changed {
			m[st.Key] = child
		}

		return m, changed
	default:
		debug.Log("can not descend into %T at key %q, skipping operation", node, st.Key)

		return node, false
	}
}

// delete removes the key or index at the end of steps. Navigation never
// creates containers; a missing segment or a type mismatch is a no-op. When
// expected is non-nil the removal only happens if the current value matches
// it (see Matches).
func (n navigator) delete(node any, steps []Step, expected any) (any, bool) {
	if len(steps) == 0 {
		return node, false
	}

	st := steps[0]
	rest := steps[1:]

	switch m := node.(type) {
	case gyaml.MapSlice:
		if st.IsIndex {
			debug.Log("can not index [%d] into a mapping, skipping operation", st.Index)

			return node, false
		}
		for i := range m {
			if keyString(m[i].Key) != st.Key {
				continue
			}
			if len(rest) > 0 {
				child, changed := n.delete(m[i].Value, rest, expected)
				if changed {
					m[i].Value = child
				}

				return m, changed
			}
			if expected != nil && !Matches(m[i].Value, expected) {
				debug.Log("value at %q does not match the expected pattern, leaving it in place", st.Key)

				return m, false
			}

			return append(m[:i], m[i+1:]...), true
		}

		return m, false
	case map[string]any:
		if st.IsIndex {
			debug.Log("can not index [%d] into a mapping, skipping operation", st.Index)

			return node, false
		}
		cur, found := m[st.Key]
		if !found {
			return m, false
		}
		if len(rest) > 0 {
			child, changed := n.delete(cur, rest, expected)
			if changed {
				m[st.Key] = child
			}

			return m, changed
		}
		if expected != nil && !Matches(cur, expected) {
			debug.Log("value at %q does not match the expected pattern, leaving it in place", st.Key)

			return m, false
		}
		delete(m, st.Key)

		return m, true
	case []any:
		if !st.IsIndex {
			debug.Log("can not look up key %q in a sequence, skipping operation", st.Key)

			return node, false
		}
		if st.Index >= len(m) {
			return m, false
		}
		if len(rest) > 0 {
			child, changed := n.delete(m[st.Index], rest, expected)
			if changed {
				m[st.Index] = child
			}

			return m, changed
		}
		if expected != nil && !Matches(m[st.Index], expected) {
			debug.Log("value at [%d] does not match the expected pattern, leaving it in place", st.Index)

			return m, false
		}

		return append(m[:st.Index], m[st.Index+1:]...), true
	default:
		debug.Log("can not navigate %s into %T, skipping operation", st, node)

		return node, false
	}
}
