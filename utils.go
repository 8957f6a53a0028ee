package confpatch

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/gopasspw/gopass/pkg/debug"
)

// directories never descended into when resolving glob targets. These hold
// dependencies or build output, not configuration anyone wants patched.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"build":        true,
}

// globMatch implements a glob matcher that supports double-asterisk (**) patterns.
func globMatch(pattern, s string) (bool, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false, err
	}

	return g.Match(s), nil
}

func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// resolveTargets returns the relative paths inside dir that a rule's File
// field addresses. A plain path is returned as-is (existence is checked
// later, a missing target is a skip, not an error). A glob pattern is
// matched against every file in the tree, skipping hidden directories and
// common dependency/build directories.
func resolveTargets(dir, pattern string) []string {
	if !isGlobPattern(pattern) {
		return []string{pattern}
	}

	var targets []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			debug.Log("failed to walk %s: %s", path, err)

			return nil
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()] {
				return fs.SkipDir
			}

			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		ok, err := globMatch(pattern, rel)
		if err != nil {
			debug.Log("invalid glob pattern %q: %s", pattern, err)

			return filepath.SkipAll
		}
		if ok {
			targets = append(targets, rel)
		}

		return nil
	})
	if err != nil {
		debug.Log("failed to resolve targets for %q in %s: %s", pattern, dir, err)
	}

	return targets
}
