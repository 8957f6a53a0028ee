package confpatch

import (
	"fmt"
	"os"

	"github.com/gopasspw/gopass/pkg/debug"
	"gopkg.in/yaml.v3"
)

// Actions supported in change rules.
const (
	// ActionReplace substitutes a regular expression match with a
	// replacement string. Text and env documents only.
	ActionReplace = "replace"
	// ActionUpdateKey sets the value at a key path, creating missing
	// intermediate containers. Structured documents (json, yaml, env).
	ActionUpdateKey = "update_key"
	// ActionDeleteKey removes the value at a key path, optionally gated on
	// the current value matching an expected pattern.
	ActionDeleteKey = "delete_key"
)

// Document types a rule can declare for its target file.
const (
	TypeText = "text"
	TypeJSON = "json"
	TypeYAML = "yaml"
	TypeYML  = "yml"
	TypeEnv  = "env"
)

// Operation is a single change applied to a file. Which fields are
// meaningful depends on Action:
//
//   - replace: Pattern (regexp) and Replacement
//   - update_key: Path and Value
//   - delete_key: Path and an optional Value acting as the expected pattern;
//     without a Value the delete is unconditional
type Operation struct {
	Action      string `yaml:"action"`
	Pattern     string `yaml:"pattern,omitempty"`
	Replacement string `yaml:"replacement,omitempty"`
	Path        string `yaml:"path,omitempty"`
	Value       any    `yaml:"value,omitempty"`
}

// Rule declares an ordered list of operations against one target file.
//
// File is a path relative to the working copy root and may contain glob
// patterns (including **) to address files by name anywhere in the tree,
// e.g. "deployment/**/values.yaml" or "**/Jenkinsfile". Operations apply in
// order; later operations see the results of earlier ones.
type Rule struct {
	File    string      `yaml:"file"`
	Type    string      `yaml:"type"`
	Changes []Operation `yaml:"changes"`
}

// Ruleset is the full run configuration: the change rules plus the git and
// pull-request settings the surrounding workflow needs. It is a plain value
// passed into the engine and the workflow at construction, so the same
// binary runs different rulesets without modification.
type Ruleset struct {
	Rules []Rule `yaml:"rules"`

	// Repos lists target repositories as PROJECT/slug. A repos file given on
	// the command line takes precedence.
	Repos []string `yaml:"repos,omitempty"`

	Branch        string `yaml:"branch"`
	BaseBranch    string `yaml:"base_branch,omitempty"`
	CommitMessage string `yaml:"commit_message"`
	PRTitle       string `yaml:"pr_title"`
	PRBody        string `yaml:"pr_body"`
}

// LoadRuleset reads and decodes a ruleset from a YAML file.
func LoadRuleset(path string) (*Ruleset, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset from %s: %w", path, err)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(buf, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset from %s: %w", path, err)
	}

	if len(rs.Rules) < 1 {
		return nil, fmt.Errorf("%w in %s", ErrNoRules, path)
	}

	debug.Log("loaded %d rules from %s", len(rs.Rules), path)

	return &rs, nil
}
