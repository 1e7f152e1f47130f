// Package commitgroup partitions staged files into commit groups and commits
// each group on its own.
//
// Assignment is first-match: a file goes to the first group, in declaration
// order, whose patterns match it. Group order is therefore part of the
// contract. Files under the graph and AI rule namespaces never take part in
// pattern matching and always get their own trailing commits.
package commitgroup

import (
	"strings"

	"projectgraph/internal/graph"
)

// Bucket ids that are not declared groups.
const (
	Unmatched  = "unmatched"
	GraphFiles = "graph-files"
	RuleFiles  = "rule-files"
)

// UnmatchedPrefix is the message prefix of the unmatched bucket.
const UnmatchedPrefix = "chore:"

// Namespace is a fixed set of path prefixes committed as its own bucket.
type Namespace struct {
	ID            string
	Prefixes      []string
	MessagePrefix string
}

// Namespaces are routed before group matching, and committed in this order
// after every group and the unmatched bucket.
var Namespaces = []Namespace{
	{ID: GraphFiles, Prefixes: []string{"project_graph/"}, MessagePrefix: "chore(graph):"},
	{ID: RuleFiles, Prefixes: []string{".cursor/", ".gemini/", ".roo/", ".kilocode/"}, MessagePrefix: "chore(rules):"},
}

func (n Namespace) contains(path string) bool {
	for _, p := range n.Prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Bucket is one planned commit.
type Bucket struct {
	ID            string
	MessagePrefix string
	Files         []string
}

// Message is the commit message of the bucket. A group declared without a
// prefix is labelled with its id.
func (b Bucket) Message() string {
	prefix := b.MessagePrefix
	if prefix == "" {
		prefix = "chore(" + b.ID + "):"
	}
	return prefix + " grouped changes"
}

// Plan is the ordered list of buckets: groups in declaration order, then
// unmatched, then each namespace. Empty buckets are kept.
type Plan struct {
	Buckets []Bucket
}

// NonEmpty returns the buckets that will produce a commit.
func (p Plan) NonEmpty() []Bucket {
	var out []Bucket
	for _, b := range p.Buckets {
		if len(b.Files) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// Assignment maps each file to its bucket id.
func (p Plan) Assignment() map[string]string {
	out := make(map[string]string)
	for _, b := range p.Buckets {
		for _, f := range b.Files {
			out[f] = b.ID
		}
	}
	return out
}

// Partition assigns every file to exactly one bucket. Paths are normalised
// and duplicates collapse; each bucket keeps input order.
func Partition(files []string, groups graph.CommitGroups) Plan {
	buckets := make([]Bucket, 0, len(groups)+1+len(Namespaces))
	for _, g := range groups {
		buckets = append(buckets, Bucket{ID: g.ID, MessagePrefix: g.MessagePrefix})
	}
	buckets = append(buckets, Bucket{ID: Unmatched, MessagePrefix: UnmatchedPrefix})
	for _, ns := range Namespaces {
		buckets = append(buckets, Bucket{ID: ns.ID, MessagePrefix: ns.MessagePrefix})
	}

	seen := make(map[string]bool)
	for _, f := range files {
		f = graph.NormalizePath(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		i := route(f, groups)
		buckets[i].Files = append(buckets[i].Files, f)
	}
	return Plan{Buckets: buckets}
}

// route returns the bucket index of f in the layout built by Partition:
// groups, then unmatched, then namespaces.
func route(f string, groups graph.CommitGroups) int {
	for k, ns := range Namespaces {
		if ns.contains(f) {
			return len(groups) + 1 + k
		}
	}
	for i, g := range groups {
		for _, p := range g.Patterns {
			if graph.MatchGlob(p, f) {
				return i
			}
		}
	}
	return len(groups)
}
