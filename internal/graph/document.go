package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Schema constrains declared entities. An empty EntityTypes list means any
// type is accepted.
type Schema struct {
	EntityTypes          []string            `json:"entityTypes,omitempty"`
	RequiredFieldsByType map[string][]string `json:"requiredFieldsByType,omitempty"`
}

// RequiredFields returns the mandatory attribute names for an entity type,
// falling back to the "default" list.
func (s *Schema) RequiredFields(entityType string) []string {
	if s == nil {
		return nil
	}
	if f, ok := s.RequiredFieldsByType[entityType]; ok {
		return f
	}
	return s.RequiredFieldsByType["default"]
}

// CommitGroup is one named bucket of glob patterns.
type CommitGroup struct {
	ID            string   `json:"-"`
	Patterns      []string `json:"patterns"`
	MessagePrefix string   `json:"messagePrefix"`
}

// CommitGroups keeps groups in declaration order. Order is significant: the
// partitioner assigns each file to the first group that matches it.
type CommitGroups []CommitGroup

// UnmarshalJSON decodes a JSON object while keeping its key order.
func (cg *CommitGroups) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*cg = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("commitGroups must be an object")
	}

	var groups CommitGroups
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("commitGroups: unexpected key %v", tok)
		}
		var g CommitGroup
		if err := dec.Decode(&g); err != nil {
			return fmt.Errorf("commitGroups.%s: %w", id, err)
		}
		g.ID = id
		// A repeated key replaces the earlier value in place, as JSON.parse does.
		if i, dup := seen[id]; dup {
			groups[i] = g
			continue
		}
		seen[id] = len(groups)
		groups = append(groups, g)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*cg = groups
	return nil
}

// MarshalJSON encodes the groups as an object in declaration order.
func (cg CommitGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range cg {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Platform describes one AI assistant whose rule file receives commands.
type Platform struct {
	Name       string `json:"name"`
	ConfigPath string `json:"configPath"`
}

// AICommand maps conversational trigger phrases to a project command.
type AICommand struct {
	Name           string   `json:"name"`
	TriggerPhrases []string `json:"triggerPhrases"`
	NpmCommand     string   `json:"npmCommand"`
	Description    string   `json:"description"`
	Implemented    *bool    `json:"implemented,omitempty"`
}

// Planned reports whether the command is declared but not implemented yet.
func (c AICommand) Planned() bool {
	return c.Implemented != nil && !*c.Implemented
}

// AICommands is the aiCommands section of the compiled graph.
type AICommands struct {
	Platforms map[string]Platform `json:"platforms,omitempty"`
	Commands  []AICommand         `json:"commands,omitempty"`
}

// Milestone is a checkpoint inside a plan.
type Milestone struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Plan is one entry of the plans section.
type Plan struct {
	Title           string      `json:"title"`
	Status          string      `json:"status"`
	Domain          string      `json:"domain,omitempty"`
	Owners          []string    `json:"owners,omitempty"`
	Rationale       string      `json:"rationale,omitempty"`
	RelatedEntities []string    `json:"relatedEntities,omitempty"`
	Links           []string    `json:"links,omitempty"`
	Milestones      []Milestone `json:"milestones,omitempty"`
}

// Plans is the plans section of the compiled graph.
type Plans struct {
	Plans map[string]Plan `json:"plans"`
}

// Document is the compiled declared graph as produced by the external
// compiler. Raw keeps the exact bytes it was decoded from.
type Document struct {
	Entities     map[string]Entity   `json:"entities"`
	Relations    map[string]Relation `json:"relations"`
	Schema       *Schema             `json:"schema,omitempty"`
	CommitGroups CommitGroups        `json:"commitGroups,omitempty"`
	AICommands   *AICommands         `json:"aiCommands,omitempty"`
	Plans        *Plans              `json:"plans,omitempty"`

	Raw []byte `json:"-"`
}

// ErrEmptyDocument is returned when the compiled output is empty.
var ErrEmptyDocument = errors.New("compiled graph is empty")

// Parse decodes a compiled graph document.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing compiled graph: %w", err)
	}
	if doc.Entities == nil {
		doc.Entities = make(map[string]Entity)
	}
	if doc.Relations == nil {
		doc.Relations = make(map[string]Relation)
	}
	doc.Raw = data
	return &doc, nil
}

// Load reads and decodes a compiled graph file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading compiled graph %s: %w", path, err)
	}
	return Parse(data)
}

// Declared returns the entity/relation part of the document as a Graph. The
// maps are shared with the document; callers must treat them as read-only.
func (d *Document) Declared() *Graph {
	return &Graph{Entities: d.Entities, Relations: d.Relations}
}

// Augment returns the raw document with extra top-level keys set, keeping
// every key the compiler emitted (including ones this package does not model).
func Augment(raw []byte, extra map[string]any) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("decoding compiled graph: %w", err)
	}
	if top == nil {
		top = make(map[string]json.RawMessage)
	}
	for k, v := range extra {
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		top[k] = enc
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(top); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
