package confpatch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	gyaml "github.com/goccy/go-yaml"
	"github.com/gopasspw/gopass/pkg/debug"
)

// Matches reports whether current matches the expected pattern of a
// conditional delete. Rule authors use it to express "remove this block only
// if it still looks like what we expect" without requiring byte-exact
// equality, since the same block varies slightly across repositories.
//
// Matching policy, checked in order:
//
//  1. A one-element sequence pattern whose element is a mapping with a "key"
//     field matches any sequence containing at least one mapping element
//     whose "key" field is equal. All other fields of the elements are
//     ignored. This covers Kubernetes-style lists such as tolerations, where
//     only the marker key identifies the entry.
//  2. A single-entry mapping pattern matches any mapping that contains the
//     same key, regardless of its value (e.g. {"nodeAffinity": {}} matches
//     every affinity block that has a nodeAffinity entry).
//  3. Anything else is compared for structural equality through a canonical
//     form: scalar types normalized, mapping keys ordered.
func Matches(current, expected any) bool {
	expected = normalize(expected)
	current = normalize(current)

	if key, ok := markerListKey(expected); ok {
		return sequenceContainsKey(current, key)
	}
	if key, ok := markerMapKey(expected); ok {
		m, isMap := current.(map[string]any)
		if !isMap {
			return false
		}
		_, found := m[key]

		return found
	}

	return canonicalEqual(current, expected)
}

// markerListKey extracts the "key" field from a one-element list-of-mapping
// pattern, e.g. [{"key": "role"}].
func markerListKey(pattern any) (string, bool) {
	seq, ok := pattern.([]any)
	if !ok || len(seq) != 1 {
		return "", false
	}
	m, ok := seq[0].(map[string]any)
	if !ok {
		return "", false
	}
	v, found := m["key"]
	if !found {
		return "", false
	}
	s, ok := v.(string)

	return s, ok
}

// markerMapKey extracts the marker from a single-entry mapping pattern,
// e.g. {"nodeAffinity": {}}.
func markerMapKey(pattern any) (string, bool) {
	m, ok := pattern.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	for k := range m {
		return k, true
	}

	return "", false
}

func sequenceContainsKey(current any, key string) bool {
	seq, ok := current.([]any)
	if !ok {
		return false
	}
	for _, el := range seq {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if v, found := m["key"]; found && v == key {
			return true
		}
	}

	return false
}

// canonicalEqual serializes both sides to canonical JSON (string keys sorted
// by the encoder, scalar types already normalized) and compares the
// documents structurally.
func canonicalEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		debug.Log("failed to canonicalize value: %s", err)

		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		debug.Log("failed to canonicalize pattern: %s", err)

		return false
	}

	return jsonpatch.Equal(ab, bb)
}

// normalize converts a decoded value into the plain shape the matcher works
// on: mappings become map[string]any regardless of how the decoder
// represented them (ordered MapSlice, map with any-typed keys), sequences
// become []any. Scalars pass through unchanged.
func normalize(v any) any {
	switch t := v.(type) {
	case gyaml.MapSlice:
		out := make(map[string]any, len(t))
		for _, item := range t {
			out[keyString(item.Key)] = normalize(item.Value)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}

		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[keyString(k)] = normalize(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalize(el)
		}

		return out
	default:
		return v
	}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}

	return fmt.Sprint(k)
}
