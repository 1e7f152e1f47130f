package graph

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// NormalizePath converts p to the canonical key form: forward slashes, no
// leading "./", no repeated separators. Normalizing twice is a no-op.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// MatchGlob reports whether the project path p matches the doublestar
// pattern. Wildcards do not match a segment starting with "." (minimatch's
// default); such a segment has to be named by a pattern segment that itself
// starts with ".".
func MatchGlob(pattern, p string) bool {
	if ok, err := doublestar.Match(pattern, p); err != nil || !ok {
		return false
	}
	var dotted []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, ".") {
			dotted = append(dotted, seg)
		}
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && !namedBy(dotted, seg) {
			return false
		}
	}
	return true
}

func namedBy(patterns []string, seg string) bool {
	for _, ps := range patterns {
		if ok, _ := doublestar.Match(ps, seg); ok {
			return true
		}
	}
	return false
}
