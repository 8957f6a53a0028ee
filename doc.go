// Package confpatch implements a structured configuration patch engine for
// bulk edits across independently owned repositories. It applies declarative
// change rules to configuration files (YAML, JSON, .env, plain text) while
// changing only the intended region: untouched formatting, comments and key
// ordering are preserved wherever a strategy allows it, and mutations can be
// gated on the current value matching an expected pattern so documents that
// do not look as expected are left alone.
//
// # Usage
//
// Rules declare a target file, its document type and an ordered list of
// operations:
//
//	rules, err := confpatch.LoadRuleset("rules.yaml")
//	if err != nil { ... }
//	engine := confpatch.New(rules.Rules)
//	changed := engine.Apply("/path/to/working/copy")
//	for _, f := range changed {
//	    fmt.Println("modified", f)
//	}
//
// A ruleset file looks like this:
//
//	rules:
//	  - file: Jenkinsfile
//	    type: text
//	    changes:
//	      - action: replace
//	        pattern: "@Library\\('gcp-jenkins-library@2\\.2\\.5'\\)"
//	        replacement: "@Library('gcp-jenkins-library@2.2.6')"
//	  - file: deployment/values.yaml
//	    type: yaml
//	    changes:
//	      - action: delete_key
//	        path: tolerations
//	        value:
//	          - key: role
//	      - action: update_key
//	        path: image.tag
//	        value: v1.2.3
//
// # Strategies
//
// The document type selects a strategy. Text files get ordered regex
// substitution. JSON and YAML files get structural navigation along dotted
// paths with bracket indices ("jobs.build.steps[0].uses"), creating missing
// intermediate mappings on writes. YAML rules consisting solely of
// unconditional or predicate-gated top-level deletes run through a
// line-oriented block editor instead of a parser, so every line outside the
// deleted block survives byte-for-byte. Env files get an exact-key upsert
// that never rewrites a longer key sharing the same prefix.
//
// Every strategy is idempotent and best-effort: a file is written back only
// when its content actually changed, a missing target is a silent skip, and
// malformed documents or impossible paths are logged and reported as "no
// change" rather than failing the run. Bulk runs over many repositories
// degrade per file, never abort.
package confpatch
