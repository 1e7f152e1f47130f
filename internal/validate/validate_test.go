package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectgraph/internal/graph"
)

func parse(t *testing.T, s string) *graph.Document {
	t.Helper()
	doc, err := graph.Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

func codes(err error) []Code {
	ve, ok := err.(*ValidationError)
	if !ok {
		return nil
	}
	out := make([]Code, len(ve.Issues))
	for i, is := range ve.Issues {
		out[i] = is.Code
	}
	return out
}

func TestValidate_Clean(t *testing.T) {
	doc := parse(t, `{
  "entities": {
    "src/a.ts": {"type": "SourceFile", "path": "src/a.ts", "purpose": "entry"},
    "src/b.ts": {"type": "SourceFile", "path": "src/b.ts", "purpose": "lib"}
  },
  "relations": {"r1": {"from": "src/a.ts", "to": "src/b.ts", "type": "imports"}},
  "schema": {"entityTypes": ["SourceFile"]}
}`)
	res, err := Validate(doc, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestValidate_ExhaustiveAndOrdered(t *testing.T) {
	doc := parse(t, `{
  "entities": {
    "b": {"type": "Widget", "path": "x", "purpose": "p"},
    "a": {"path": "x", "purpose": "p", "owner": "me"},
    "c": {"type": "SourceFile", "purpose": ""}
  },
  "relations": {
    "r2": {"from": "a", "to": "nowhere"},
    "r1": {"from": "ghost", "to": "b", "type": "imports"}
  },
  "schema": {
    "entityTypes": ["SourceFile"],
    "requiredFieldsByType": {"SourceFile": ["layer"], "default": ["owner"]}
  }
}`)
	_, err := Validate(doc, Options{})
	require.Error(t, err)

	assert.Equal(t, []Code{
		// a
		MissingType,
		// b
		UnknownType, MissingRequiredField, DuplicatePath,
		// c
		MissingPath, MissingPurpose, MissingRequiredField,
		// r1
		DanglingFrom,
		// r2
		DanglingTo, MissingRelationType,
	}, codes(err))

	ve := err.(*ValidationError)
	assert.Equal(t, "Entity 'b' has unknown type 'Widget'.", ve.Issues[1].String())
	assert.Equal(t, "Entity 'b' is missing required field 'owner' by schema.", ve.Issues[2].String())
	assert.Equal(t, "Duplicate entity path found: 'x'.", ve.Issues[3].String())
	assert.Equal(t, "Entity 'c' is missing required field 'layer' by schema.", ve.Issues[6].String())
	assert.Len(t, ve.Lines(), 10)
}

func TestValidate_NIndependentDefectsGiveNIssues(t *testing.T) {
	doc := parse(t, `{
  "entities": {
    "e1": {"type": "T", "path": "p1"},
    "e2": {"type": "T", "path": "p2"},
    "e3": {"type": "T", "path": "p3"}
  }
}`)
	_, err := Validate(doc, Options{})
	assert.Equal(t, []Code{MissingPurpose, MissingPurpose, MissingPurpose}, codes(err))
}

func TestValidate_NoSchemaAcceptsAnyType(t *testing.T) {
	doc := parse(t, `{"entities": {"k": {"type": "Anything", "path": "k", "purpose": "p"}}}`)
	_, err := Validate(doc, Options{})
	assert.NoError(t, err)
}

func TestValidate_NullEntityReportsMissingFields(t *testing.T) {
	doc := parse(t, `{"entities": {"k": null}}`)
	_, err := Validate(doc, Options{})
	assert.Equal(t, []Code{MissingType, MissingPath, MissingPurpose}, codes(err))
}

func TestValidate_AICommandWarnings(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "GEMINI.md"), nil, 0644))

	doc := parse(t, `{
  "entities": {},
  "aiCommands": {
    "platforms": {
      "gemini": {"name": "Gemini", "configPath": "GEMINI.md"},
      "cursor": {"name": "Cursor", "configPath": ".cursor/rules/graph.md"}
    },
    "commands": [{"name": "graph-audit", "triggerPhrases": [], "npmCommand": "npm run graph:audit"}]
  }
}`)
	res, err := Validate(doc, Options{Root: root})
	require.NoError(t, err, "warnings never fail validation")
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "AI platform config missing: Cursor (.cursor/rules/graph.md)", res.Warnings[0].Message)
	assert.Contains(t, res.Warnings[1].Message, "graph-audit")
}
