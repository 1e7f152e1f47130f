package aicommands

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectgraph/internal/graph"
)

var now = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func fixture(t *testing.T) *graph.AICommands {
	t.Helper()
	doc, err := graph.Parse([]byte(`{
		"entities": {}, "relations": {},
		"aiCommands": {
			"platforms": {
				"roo": {"name": "Roo", "configPath": ".roo/rules.md"},
				"gemini": {"name": "Gemini", "configPath": "GEMINI.md"},
				"cursor": {"name": "Cursor", "configPath": ".cursor/rules/graph.mdc"}
			},
			"commands": [
				{"name": "graph-audit", "triggerPhrases": ["audit graph", "check graph"], "npmCommand": "npm run graph:audit", "description": "Runs the audit."},
				{"name": "graph-publish", "triggerPhrases": ["publish"], "npmCommand": "npm run graph:publish", "description": "Publishes.", "implemented": false}
			]
		}
	}`))
	require.NoError(t, err)
	return doc.AICommands
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Graph Audit", Title("graph-audit"))
	assert.Equal(t, "Commit", Title("commit"))
	assert.Equal(t, "A  B", Title("a--b"))
}

func TestLines_Gemini(t *testing.T) {
	ai := fixture(t)
	assert.Equal(t, []string{
		"- Command Aliases: When the user requests \"audit graph\" or \"check graph\", execute `npm run graph:audit`.",
		"- Command Aliases: When the user requests \"publish\", execute `npm run graph:publish` (planned).",
	}, Lines(Gemini, ai.Commands))
}

func TestLines_Heading(t *testing.T) {
	ai := fixture(t)
	assert.Equal(t, []string{
		"## Graph Audit",
		`- Trigger Phrase: "audit graph"`,
		"- Action: Run `npm run graph:audit`",
		"- Description: Runs the audit.",
		"",
		"## Graph Publish",
		`- Trigger Phrase: "publish"`,
		"- Action: Run `npm run graph:publish` (planned)",
		"- Description: Publishes.",
		"",
	}, Lines("roo", ai.Commands))
}

func TestSync_AppendsAndSkipsMissing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "GEMINI.md"), []byte("# Rules\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".roo"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".roo", "rules.md"), nil, 0644))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	synced, err := Sync(root, fixture(t), now, logger)
	require.NoError(t, err)
	assert.Equal(t, []Synced{
		{Platform: "gemini", Path: "GEMINI.md"},
		{Platform: "roo", Path: ".roo/rules.md"},
	}, synced)
	assert.Contains(t, logs.String(), "platform=Cursor")

	gemini, err := os.ReadFile(filepath.Join(root, "GEMINI.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(gemini), "# Rules\n\n"+SyncMarker+"\n<!-- 2025-02-03T04:05:06.000Z -->\n\n- Command Aliases"))

	_, err = os.Stat(filepath.Join(root, ".cursor", "rules", "graph.mdc"))
	assert.True(t, os.IsNotExist(err), "missing config files are never created")
}

func TestSync_NoSection(t *testing.T) {
	synced, err := Sync(t.TempDir(), nil, now, nil)
	require.NoError(t, err)
	assert.Empty(t, synced)
}

func TestReadmeSection(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "GEMINI.md"), nil, 0644))

	section := ReadmeSection(root, fixture(t), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	assert.True(t, strings.HasPrefix(section, "\n## AI Assistant Command Mapping\n\n"))
	assert.Contains(t, section, "### For Gemini (`GEMINI.md`)\n\n```markdown\n- Command Aliases")
	assert.NotContains(t, section, "Roo")
}
