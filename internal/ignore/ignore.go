// Package ignore filters the file walks done by source adapters using
// gitignore-style rules.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"projectgraph/internal/graph"
)

// IgnoreFile is the project-local rule file read after .gitignore.
const IgnoreFile = ".pgraphignore"

type rule struct {
	glob    string
	negated bool
	dirOnly bool
}

// Matcher evaluates rules in order; the last matching rule decides.
type Matcher struct {
	rules []rule
}

// New returns a matcher holding the given rule lines.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	m.Add(lines...)
	return m
}

// Add appends gitignore-style rule lines. Blank lines and comments are skipped.
func (m *Matcher) Add(lines ...string) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if strings.HasPrefix(line, "!") {
			r.negated = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		anchored := strings.HasPrefix(line, "/")
		line = strings.TrimPrefix(line, "/")
		if !anchored && !strings.Contains(line, "/") {
			line = "**/" + line
		}
		r.glob = line
		m.rules = append(m.rules, r)
	}
}

// ReadFile appends the rules in path. A missing file is not an error.
func (m *Matcher) ReadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	m.Add(lines...)
	return nil
}

// Match reports whether rel (root-relative) is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = graph.NormalizePath(rel)
	ignored := false
	for _, r := range m.rules {
		var hit bool
		if r.dirOnly && !isDir {
			hit = underDir(r.glob, rel)
		} else {
			hit = matchGlob(r.glob, rel)
		}
		if hit {
			ignored = !r.negated
		}
	}
	return ignored
}

func underDir(glob, rel string) bool {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(glob, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func matchGlob(glob, rel string) bool {
	if ok, _ := doublestar.Match(glob, rel); ok {
		return true
	}
	if !strings.HasSuffix(glob, "/**") {
		ok, _ := doublestar.Match(glob+"/**", rel)
		return ok
	}
	return false
}

// Defaults are the rules every adapter walk applies.
var Defaults = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"bower_components/",
	"dist/",
	"build/",
	"out/",
	"coverage/",
	".next/",
	".nuxt/",
	".turbo/",
	".cache/",
	"__pycache__/",
	".venv/",
	"venv/",
	"env/",
	".tox/",
	".mypy_cache/",
	".pytest_cache/",
	"*.egg-info/",
	"site-packages/",
	"*.min.js",
	"*.d.ts",
	".DS_Store",
}

// Load builds the matcher for a project: defaults, then .gitignore, then
// .pgraphignore. Later rules may re-include paths with "!".
func Load(root string) (*Matcher, error) {
	m := New(Defaults...)
	for _, name := range []string{".gitignore", IgnoreFile} {
		if err := m.ReadFile(filepath.Join(root, name)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// WalkFunc receives the root-relative forward-slash path of each kept file.
type WalkFunc func(rel string) error

// Walk visits every non-ignored regular file below root/dir, in lexical
// order. A missing dir is skipped silently.
func Walk(root, dir string, m *Matcher, fn WalkFunc) error {
	start := filepath.Join(root, filepath.FromSlash(dir))
	if _, err := os.Stat(start); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if m != nil && m.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if m != nil && m.Match(rel, false) {
			return nil
		}
		return fn(rel)
	})
}
