// Package render turns graphs and drift reports into the text artifacts kept
// in the memory bank: a Mermaid relation diagram, a drift summary, README
// sections, plan digests and audit log lines.
//
// Each artifact is built from structured data first (Edge, Report, Plans) so
// tests can assert on values rather than on formatted text.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"projectgraph/internal/graph"
)

// DefaultEdgeType labels relations that carry no type.
const DefaultEdgeType = "rel"

// Edge is one arrow of the relation diagram. Endpoints are already sanitised.
type Edge struct {
	From string
	To   string
	Type string
}

// Edges returns the declared relations followed by the observed ones, each
// in sorted key order. Edges with an empty endpoint after sanitising are
// dropped.
func Edges(doc *graph.Document, observed *graph.Graph) []Edge {
	var out []Edge
	add := func(g *graph.Graph) {
		for _, k := range g.RelationKeys() {
			r := g.Relations[k]
			from, to := sanitize(r.From), sanitize(r.To)
			if from == "" || to == "" {
				continue
			}
			typ := r.Type
			if typ == "" {
				typ = DefaultEdgeType
			}
			out = append(out, Edge{From: from, To: to, Type: typ})
		}
	}
	if doc != nil {
		add(doc.Declared())
	}
	add(observed)
	return out
}

// sanitize keeps [A-Za-z0-9_/.-] and replaces every other rune with '_'.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '/' || r == '.' || r == '-':
			return r
		}
		return '_'
	}, s)
}

// WriteMermaid writes edges as a left-to-right Mermaid flowchart.
func WriteMermaid(w io.Writer, edges []Edge) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "graph LR")
	for _, e := range edges {
		fmt.Fprintf(bw, "\n  %s -- %s --> %s", e.From, e.Type, e.To)
	}
	return bw.Flush()
}
