package confpatch

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"
	gyaml "github.com/goccy/go-yaml"
	"github.com/gopasspw/gopass/pkg/debug"
	"github.com/gopasspw/gopass/pkg/set"
	yamlv3 "gopkg.in/yaml.v3"
)

// Engine applies a set of change rules to the files of a single working
// copy. It is constructed from an explicit rule list, holds no state between
// runs and assumes exclusive access to the working copy for the duration of
// Apply.
//
// Every strategy is wrapped in the same gate: read the file, apply all
// operations in memory, write back only if the content actually changed.
// Errors below the single-file level (parse failures, type mismatches,
// unreadable files) never abort a run; the affected file is reported as
// unmodified and processing continues.
type Engine struct {
	// DryRun computes and reports changes without writing anything back.
	// The would-be diff of each file is logged.
	DryRun bool

	rules []Rule
}

// New creates an engine for the given rules.
func New(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Apply runs every rule against the working copy rooted at dir and returns
// the sorted, de-duplicated list of relative paths whose content changed.
// Re-applying the same rules to the result yields no further changes.
func (e *Engine) Apply(dir string) []string {
	changed := []string{}

	for _, rule := range e.rules {
		targets := resolveTargets(dir, rule.File)
		sort.Strings(targets)
		for _, rel := range targets {
			if e.applyToFile(dir, rel, rule) {
				changed = append(changed, rel)
			}
		}
	}

	return set.Sorted(changed)
}

// applyToFile dispatches one rule onto one file and reports whether the
// file's content changed.
func (e *Engine) applyToFile(dir, rel string, rule Rule) bool {
	path := filepath.Join(dir, rel)

	fi, err := os.Stat(path)
	if err != nil {
		debug.V(1).Log("target %s not found, skipping", rel)

		return false
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		debug.Log("failed to read %s: %s", path, err)

		return false
	}

	var out []byte
	var modified bool
	switch rule.Type {
	case TypeJSON:
		out, modified = applyJSON(buf, rule.Changes)
	case TypeYAML, TypeYML:
		out, modified = applyYAML(buf, rule.Changes)
	case TypeEnv:
		s, ok := applyEnv(string(buf), rule.Changes)
		out, modified = []byte(s), ok
	default:
		// text and anything unrecognized
		s, ok := applyText(string(buf), rule.Changes)
		out, modified = []byte(s), ok
	}

	if !modified {
		debug.V(1).Log("no changes for %s", rel)

		return false
	}

	if e.DryRun {
		debug.Log("dry run, would modify %s:\n%s", rel, lineDiff(string(buf), string(out)))

		return true
	}

	if err := os.WriteFile(path, out, fi.Mode().Perm()); err != nil {
		debug.Log("failed to write %s: %s", path, err)

		return false
	}

	debug.Log("modified %s", rel)

	return true
}

// applyText applies replace operations in order via regular expression
// substitution. Structural operations have no meaning for plain text and are
// ignored.
func applyText(content string, ops []Operation) (string, bool) {
	original := content

	for _, op := range ops {
		if op.Action != ActionReplace {
			debug.Log("action %q is not supported for text files, ignoring", op.Action)

			continue
		}
		content = replacePattern(content, op)
	}

	return content, content != original
}

func replacePattern(content string, op Operation) string {
	if op.Pattern == "" {
		return content
	}
	re, err := regexp.Compile(op.Pattern)
	if err != nil {
		debug.Log("failed to compile pattern %q: %s", op.Pattern, err)

		return content
	}

	return re.ReplaceAllString(content, op.Replacement)
}

// applyJSON parses the document, applies update and delete operations
// through the navigator and re-serializes with two-space indentation.
// Whether anything changed is decided structurally, so re-indenting an
// otherwise untouched document does not count as a change.
func applyJSON(content []byte, ops []Operation) ([]byte, bool) {
	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		debug.Log("failed to parse JSON: %s", err)

		return nil, false
	}

	nav := navigator{}
	for _, op := range ops {
		steps := ParsePath(op.Path)
		if len(steps) == 0 {
			continue
		}
		switch op.Action {
		case ActionUpdateKey:
			doc, _ = nav.set(doc, steps, normalize(op.Value))
		case ActionDeleteKey:
			doc, _ = nav.delete(doc, steps, normalizeExpected(op.Value))
		default:
			debug.Log("action %q is not supported for JSON files, ignoring", op.Action)
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		debug.Log("failed to serialize JSON: %s", err)

		return nil, false
	}
	out = append(out, '\n')

	return out, !jsonpatch.Equal(content, out)
}

// applyYAML picks one of two strategies. When every operation deletes a
// top-level, non-indexed key, the whole rule runs through the text-block
// editor and all untouched lines survive byte-for-byte, comments included.
// Any update or nested delete forces a full parse and re-serialization
// through the ordered decoder: key order is kept, comments and blank lines
// are not. The two paths have fundamentally different guarantees and are
// deliberately not unified.
func applyYAML(content []byte, ops []Operation) ([]byte, bool) {
	if allTopLevelDeletes(ops) {
		return applyYAMLBlocks(content, ops)
	}

	return applyYAMLStructural(content, ops)
}

func allTopLevelDeletes(ops []Operation) bool {
	if len(ops) == 0 {
		return false
	}
	for _, op := range ops {
		if op.Action != ActionDeleteKey || !isTopLevelKey(ParsePath(op.Path)) {
			return false
		}
	}

	return true
}

// applyYAMLBlocks deletes top-level blocks in text space. A conditional
// delete first evaluates its predicate against a full parse of the document;
// the parse is only used for the decision, the deletion itself happens on
// the raw lines. Each key is removed repeatedly until no occurrence is left.
func applyYAMLBlocks(content []byte, ops []Operation) ([]byte, bool) {
	var parsed map[string]any
	for _, op := range ops {
		if op.Value == nil {
			continue
		}
		if err := yamlv3.Unmarshal(content, &parsed); err != nil {
			debug.Log("failed to parse YAML for predicate evaluation: %s", err)

			return nil, false
		}

		break
	}

	text := string(content)
	original := text
	for _, op := range ops {
		key := op.Path
		if key == "" {
			continue
		}
		if op.Value != nil {
			if !Matches(parsed[key], op.Value) {
				debug.Log("value of %q does not match the expected pattern, keeping the block", key)

				continue
			}
		}
		text, _ = deleteBlockAll(text, key)
	}

	return []byte(text), text != original
}

func applyYAMLStructural(content []byte, ops []Operation) ([]byte, bool) {
	var doc gyaml.MapSlice
	if err := gyaml.UnmarshalWithOptions(content, &doc, gyaml.UseOrderedMap()); err != nil {
		debug.Log("failed to parse YAML: %s", err)

		return nil, false
	}

	indent, indentSeq := detectIndentAndSequence(string(content))

	before, err := encodeYAML(doc, indent, indentSeq)
	if err != nil {
		debug.Log("failed to serialize YAML: %s", err)

		return nil, false
	}

	node := any(doc)
	nav := navigator{ordered: true}
	for _, op := range ops {
		steps := ParsePath(op.Path)
		if len(steps) == 0 {
			continue
		}
		switch op.Action {
		case ActionUpdateKey:
			node, _ = nav.set(node, steps, toOrdered(normalize(op.Value)))
		case ActionDeleteKey:
			node, _ = nav.delete(node, steps, normalizeExpected(op.Value))
		default:
			debug.Log("action %q is not supported for YAML files, ignoring", op.Action)
		}
	}

	after, err := encodeYAML(node, indent, indentSeq)
	if err != nil {
		debug.Log("failed to serialize YAML: %s", err)

		return nil, false
	}

	return after, !bytes.Equal(before, after)
}

func encodeYAML(node any, indent int, indentSeq bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := gyaml.NewEncoder(&buf, gyaml.Indent(indent), gyaml.IndentSequence(indentSeq))
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// normalizeExpected keeps the nil-means-unconditional contract of delete
// operations intact across normalization.
func normalizeExpected(v any) any {
	if v == nil {
		return nil
	}

	return normalize(v)
}

// toOrdered converts a normalized value into the ordered mapping form used
// inside YAML documents, sorting keys so inserted values serialize
// deterministically.
func toOrdered(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(gyaml.MapSlice, 0, len(t))
		for _, k := range keys {
			out = append(out, gyaml.MapItem{Key: k, Value: toOrdered(t[k])})
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = toOrdered(el)
		}

		return out
	default:
		return v
	}
}
