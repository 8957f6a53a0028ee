package confpatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gopasspw/gopass/pkg/debug"
)

// applyEnv applies change operations to a line-oriented KEY=value file.
// Replace operations behave exactly as in the text strategy. Update
// operations rewrite the first existing "KEY=..." line in place, or append a
// new line if the key is not present. Key matching is anchored at the start
// of a line with the exact key token, so updating API_KEY never touches
// API_KEY_VERSION.
func applyEnv(content string, ops []Operation) (string, bool) {
	original := content

	for _, op := range ops {
		switch op.Action {
		case ActionReplace:
			content = replacePattern(content, op)
		case ActionUpdateKey:
			if op.Path == "" {
				continue
			}
			content = upsertEnvKey(content, op.Path, scalarString(op.Value))
		default:
			debug.Log("action %q is not supported for env files, ignoring", op.Action)
		}
	}

	return content, content != original
}

func upsertEnvKey(content, key, value string) string {
	re, err := regexp.Compile(`(?m)^` + regexp.QuoteMeta(key) + `\s*=.*$`)
	if err != nil {
		debug.Log("failed to compile env key pattern for %q: %s", key, err)

		return content
	}

	line := key + "=" + value

	if loc := re.FindStringIndex(content); loc != nil {
		return content[:loc[0]] + line + content[loc[1]:]
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	return content + line + "\n"
}

// scalarString renders a rule value for a KEY=value line.
func scalarString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}
