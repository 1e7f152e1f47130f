// Package drift reconciles a declared graph against observed reality.
//
// Two views are offered. Compute diffs the entity key sets of the declared and
// observed graphs. Audit diffs declared keys against the files actually
// present under the audited directories, either across the whole tree (full)
// or restricted to an explicit file list (incremental).
package drift

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"projectgraph/internal/graph"
)

// Mode names the audit scope.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Report holds the two sorted one-sided key sets.
type Report struct {
	Mode                Mode     `json:"mode,omitempty"`
	ObservedNotDeclared []string `json:"observedNotDeclared"`
	DeclaredNotObserved []string `json:"declaredNotObserved"`
}

// InSync reports whether both sides are empty.
func (r Report) InSync() bool {
	return len(r.ObservedNotDeclared) == 0 && len(r.DeclaredNotObserved) == 0
}

// Total is the number of drifting keys.
func (r Report) Total() int {
	return len(r.ObservedNotDeclared) + len(r.DeclaredNotObserved)
}

// Compute returns the entity-key difference between declared and observed.
// Keys are normalised before comparison. Neither graph is modified.
func Compute(declared, observed *graph.Graph) Report {
	d := keySet(declared)
	o := keySet(observed)
	return Report{
		ObservedNotDeclared: minus(o, d),
		DeclaredNotObserved: minus(d, o),
	}
}

// Exclude returns r without the keys matched by any of patterns.
func (r Report) Exclude(patterns []string) Report {
	r.ObservedNotDeclared = exclude(r.ObservedNotDeclared, patterns)
	r.DeclaredNotObserved = exclude(r.DeclaredNotObserved, patterns)
	return r
}

func keySet(g *graph.Graph) map[string]bool {
	set := make(map[string]bool)
	if g == nil {
		return set
	}
	for k := range g.Entities {
		set[graph.NormalizePath(k)] = true
	}
	return set
}

// minus returns the sorted keys of a not in b, never nil.
func minus(a, b map[string]bool) []string {
	out := []string{}
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Scope selects what an Audit looks at.
type Scope struct {
	Root string
	// Dirs are the top-level audit directories; nil means DefaultDirs.
	Dirs []string
	// Exclude globs are dropped from the observed file list.
	Exclude []string
	// Files switches to incremental mode when non-nil.
	Files []string
}

// DefaultDirs are audited when Scope.Dirs is nil.
var DefaultDirs = []string{"src", "electron", "test", "public"}

// Audit compares declared entity keys against files on disk.
func Audit(declared *graph.Graph, scope Scope) (Report, error) {
	dirs := scope.Dirs
	if dirs == nil {
		dirs = DefaultDirs
	}
	for _, p := range scope.Exclude {
		if !doublestar.ValidatePattern(p) {
			return Report{}, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	mode := ModeFull
	var files []string
	if scope.Files != nil {
		mode = ModeIncremental
		var err error
		if files, err = existing(scope.Root, scope.Files); err != nil {
			return Report{}, err
		}
	} else {
		var err error
		if files, err = listDirs(scope.Root, dirs); err != nil {
			return Report{}, err
		}
	}
	files = exclude(files, scope.Exclude)

	observed := make(map[string]bool, len(files))
	for _, f := range files {
		observed[f] = true
	}

	var listed map[string]bool
	if mode == ModeIncremental {
		listed = make(map[string]bool, len(scope.Files))
		for _, f := range scope.Files {
			listed[graph.NormalizePath(f)] = true
		}
	}

	declaredKeys := keySet(declared)
	candidates := make(map[string]bool)
	for k := range declaredKeys {
		if !strings.Contains(k, "/") || !underAny(k, dirs) {
			continue
		}
		if listed != nil && !listed[k] {
			continue
		}
		if excluded(k, scope.Exclude) {
			continue
		}
		candidates[k] = true
	}

	return Report{
		Mode:                mode,
		ObservedNotDeclared: minus(observed, declaredKeys),
		DeclaredNotObserved: minus(candidates, observed),
	}, nil
}

func underAny(key string, dirs []string) bool {
	for _, d := range dirs {
		d = strings.TrimSuffix(graph.NormalizePath(d), "/")
		if d != "" && strings.HasPrefix(key, d+"/") {
			return true
		}
	}
	return false
}

func listDirs(root string, dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		start := filepath.Join(root, filepath.FromSlash(dir))
		err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == start && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, graph.NormalizePath(filepath.ToSlash(rel)))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", start, err)
		}
	}
	return out, nil
}

// existing keeps the listed files that are still present on disk.
func existing(root string, files []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, f := range files {
		f = graph.NormalizePath(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(f)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", f, err)
		}
		if !info.IsDir() {
			out = append(out, f)
		}
	}
	return out, nil
}

func exclude(files, patterns []string) []string {
	if len(patterns) == 0 {
		return files
	}
	out := files[:0:0]
	for _, f := range files {
		if !excluded(f, patterns) {
			out = append(out, f)
		}
	}
	return out
}

func excluded(f string, patterns []string) bool {
	for _, p := range patterns {
		if graph.MatchGlob(p, f) {
			return true
		}
	}
	return false
}
