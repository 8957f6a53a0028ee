package confpatch

import "errors"

// ErrNoRules indicates a ruleset file that contains no change rules.
var ErrNoRules = errors.New("ruleset contains no rules")
