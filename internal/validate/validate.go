// Package validate checks a compiled declared graph for structural soundness.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"projectgraph/internal/graph"
)

// Code classifies a validation issue.
type Code string

const (
	MissingType          Code = "MissingType"
	UnknownType          Code = "UnknownType"
	MissingPath          Code = "MissingPath"
	MissingPurpose       Code = "MissingPurpose"
	MissingRequiredField Code = "MissingRequiredField"
	DuplicatePath        Code = "DuplicatePath"
	DanglingFrom         Code = "DanglingFrom"
	DanglingTo           Code = "DanglingTo"
	MissingRelationType  Code = "MissingRelationType"
)

// Issue is one defect found in the declared graph.
type Issue struct {
	Code  Code
	Key   string
	Field string
	Value string
}

func (i Issue) String() string {
	switch i.Code {
	case MissingType:
		return fmt.Sprintf("Entity '%s' is missing a 'type'.", i.Key)
	case UnknownType:
		return fmt.Sprintf("Entity '%s' has unknown type '%s'.", i.Key, i.Value)
	case MissingPath:
		return fmt.Sprintf("Entity '%s' is missing a 'path'.", i.Key)
	case MissingPurpose:
		return fmt.Sprintf("Entity '%s' is missing a 'purpose'.", i.Key)
	case MissingRequiredField:
		return fmt.Sprintf("Entity '%s' is missing required field '%s' by schema.", i.Key, i.Field)
	case DuplicatePath:
		return fmt.Sprintf("Duplicate entity path found: '%s'.", i.Value)
	case DanglingFrom:
		return fmt.Sprintf("Relation '%s' has an invalid or missing 'from' entity: '%s'.", i.Key, i.Value)
	case DanglingTo:
		return fmt.Sprintf("Relation '%s' has an invalid or missing 'to' entity: '%s'.", i.Key, i.Value)
	case MissingRelationType:
		return fmt.Sprintf("Relation '%s' is missing a 'type'.", i.Key)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Key)
}

// ValidationError carries the complete issue list of a rejected graph.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "graph validation failed: " + e.Issues[0].String()
	}
	return fmt.Sprintf("graph validation failed with %d issues", len(e.Issues))
}

// Lines returns one human-readable line per issue.
func (e *ValidationError) Lines() []string {
	out := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		out[i] = is.String()
	}
	return out
}

// Warning is a non-fatal finding.
type Warning struct {
	Message string
}

// Result is the outcome of Validate.
type Result struct {
	Warnings []Warning
}

// Options tune checks that touch the filesystem.
type Options struct {
	// Root resolves AI platform config paths. Empty skips those checks.
	Root string
}

// Validate checks every entity (in sorted key order) and then every relation
// (in sorted key order). It never stops at the first defect. A non-nil
// *ValidationError is returned when any issue was found.
func Validate(doc *graph.Document, opts Options) (Result, error) {
	var issues []Issue
	var res Result

	var allowed map[string]bool
	if doc.Schema != nil && len(doc.Schema.EntityTypes) > 0 {
		allowed = make(map[string]bool, len(doc.Schema.EntityTypes))
		for _, t := range doc.Schema.EntityTypes {
			allowed[t] = true
		}
	}

	declared := doc.Declared()
	seenPaths := make(map[string]bool)
	for _, key := range declared.EntityKeys() {
		e := declared.Entities[key]
		if e.Type == "" {
			issues = append(issues, Issue{Code: MissingType, Key: key, Field: "type"})
		} else if allowed != nil && !allowed[e.Type] {
			issues = append(issues, Issue{Code: UnknownType, Key: key, Field: "type", Value: e.Type})
		}
		if e.Path == "" {
			issues = append(issues, Issue{Code: MissingPath, Key: key, Field: "path"})
		}
		if !truthy(e.Attr("purpose")) {
			issues = append(issues, Issue{Code: MissingPurpose, Key: key, Field: "purpose"})
		}
		for _, f := range doc.Schema.RequiredFields(e.Type) {
			if !e.Has(f) {
				issues = append(issues, Issue{Code: MissingRequiredField, Key: key, Field: f})
			}
		}
		if e.Path != "" {
			if seenPaths[e.Path] {
				issues = append(issues, Issue{Code: DuplicatePath, Key: key, Field: "path", Value: e.Path})
			}
			seenPaths[e.Path] = true
		}
	}

	for _, key := range declared.RelationKeys() {
		r := declared.Relations[key]
		if _, ok := declared.Entities[r.From]; r.From == "" || !ok {
			issues = append(issues, Issue{Code: DanglingFrom, Key: key, Field: "from", Value: r.From})
		}
		if _, ok := declared.Entities[r.To]; r.To == "" || !ok {
			issues = append(issues, Issue{Code: DanglingTo, Key: key, Field: "to", Value: r.To})
		}
		if r.Type == "" {
			issues = append(issues, Issue{Code: MissingRelationType, Key: key, Field: "type"})
		}
	}

	res.Warnings = aiCommandWarnings(doc.AICommands, opts.Root)

	if len(issues) > 0 {
		return res, &ValidationError{Issues: issues}
	}
	return res, nil
}

func aiCommandWarnings(ai *graph.AICommands, root string) []Warning {
	if ai == nil {
		return nil
	}
	var out []Warning
	if root != "" {
		for _, key := range sortedPlatformKeys(ai.Platforms) {
			p := ai.Platforms[key]
			if p.ConfigPath == "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p.ConfigPath))); err != nil {
				out = append(out, Warning{Message: fmt.Sprintf("AI platform config missing: %s (%s)", p.Name, p.ConfigPath)})
			}
		}
	}
	for _, c := range ai.Commands {
		if len(c.TriggerPhrases) == 0 {
			out = append(out, Warning{Message: fmt.Sprintf("AI command %q has no trigger phrases", c.Name)})
		}
	}
	return out
}

func sortedPlatformKeys(m map[string]graph.Platform) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truthy follows JSON truthiness: null, false, 0 and "" are empty.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	}
	return true
}
