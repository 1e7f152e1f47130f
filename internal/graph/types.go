// Package graph provides the declared/observed project graph model shared by
// the validator, adapters, drift reconciler, renderer and partitioner.
package graph

import (
	"encoding/json"
	"sort"
)

// Well-known entity and relation type tags.
const (
	TypeSourceFile     = "SourceFile"
	TypeReactSource    = "ReactSource"
	TypeElectronSource = "ElectronSource"
	TypePythonSource   = "PythonSource"

	RelImports = "imports"
)

// Entity is one node of a graph. Everything other than type and path lives in
// Attrs (purpose, owners, metadata...).
type Entity struct {
	Type  string
	Path  string
	Attrs map[string]any
}

// Has reports whether the entity carries the named field.
func (e Entity) Has(field string) bool {
	switch field {
	case "type":
		return e.Type != ""
	case "path":
		return e.Path != ""
	}
	_, ok := e.Attrs[field]
	return ok
}

// Attr returns an attribute value, or nil.
func (e Entity) Attr(name string) any {
	return e.Attrs[name]
}

// UnmarshalJSON decodes the flat {type, path, ...attrs} shape.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		// null decodes to an empty entity; the validator reports what is missing.
		return nil
	}
	if s, ok := m["type"].(string); ok {
		e.Type = s
		delete(m, "type")
	}
	if s, ok := m["path"].(string); ok {
		e.Path = s
		delete(m, "path")
	}
	e.Attrs = m
	return nil
}

// MarshalJSON encodes the entity back to the flat shape.
func (e Entity) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Attrs)+2)
	for k, v := range e.Attrs {
		m[k] = v
	}
	if e.Type != "" {
		m["type"] = e.Type
	}
	if e.Path != "" {
		m["path"] = e.Path
	}
	return json.Marshal(m)
}

// Relation is a typed edge. For declared relations To names an entity key;
// observed relations may carry an unresolved module specifier instead.
type Relation struct {
	From  string
	To    string
	Type  string
	Attrs map[string]any
}

// UnmarshalJSON decodes the flat {from, to, type, ...attrs} shape.
func (r *Relation) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	for _, f := range []struct {
		key string
		dst *string
	}{{"from", &r.From}, {"to", &r.To}, {"type", &r.Type}} {
		if s, ok := m[f.key].(string); ok {
			*f.dst = s
			delete(m, f.key)
		}
	}
	if len(m) > 0 {
		r.Attrs = m
	}
	return nil
}

// MarshalJSON encodes the relation back to the flat shape.
func (r Relation) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Attrs)+3)
	for k, v := range r.Attrs {
		m[k] = v
	}
	if r.From != "" {
		m["from"] = r.From
	}
	if r.To != "" {
		m["to"] = r.To
	}
	if r.Type != "" {
		m["type"] = r.Type
	}
	return json.Marshal(m)
}

// Graph maps entity keys to entities and relation keys to relations. Declared
// and observed graphs share this shape so they can be diffed structurally.
type Graph struct {
	Entities  map[string]Entity   `json:"entities"`
	Relations map[string]Relation `json:"relations"`
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Entities:  make(map[string]Entity),
		Relations: make(map[string]Relation),
	}
}

// EntityKeys returns entity keys in sorted order.
func (g *Graph) EntityKeys() []string {
	if g == nil {
		return nil
	}
	return sortedKeys(g.Entities)
}

// RelationKeys returns relation keys in sorted order.
func (g *Graph) RelationKeys() []string {
	if g == nil {
		return nil
	}
	return sortedKeys(g.Relations)
}

// Merge copies every entity and relation of other into g. Keys already
// present are overwritten.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for k, e := range other.Entities {
		g.Entities[k] = e
	}
	for k, r := range other.Relations {
		g.Relations[k] = r
	}
}

// Len returns the entity and relation counts.
func (g *Graph) Len() (entities, relations int) {
	if g == nil {
		return 0, 0
	}
	return len(g.Entities), len(g.Relations)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
