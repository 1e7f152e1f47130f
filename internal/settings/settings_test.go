package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Envelope(t *testing.T) {
	data := `{
  "settingsFileMetadata": {"description": "x"},
  "options": {
    "audit_after_commit": {"value": true, "description": "a"},
    "keep_compiled_graph": {"value": false, "description": "k"},
    "audit_exclude_patterns": {"value": ["dist/**"]},
    "adapters": {"value": {"python": {"enabled": true}}},
    "something_new": {"value": 42}
  }
}`
	s, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.True(t, s.AuditAfterCommit)
	assert.False(t, s.KeepCompiledGraph)
	assert.Equal(t, []string{"dist/**"}, s.AuditExcludePatterns)
	assert.Equal(t, map[string]bool{"python": true}, s.EnabledAdapters())
	assert.Equal(t, DefaultAuditDirectories, s.AuditDirectories)
}

func TestParse_FlatYAML(t *testing.T) {
	data := `
audit_changed_only: true
audit_directories: [lib, app]
metrics_textfile: out/pgraph.prom
`
	s, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.True(t, s.AuditChangedOnly)
	assert.Equal(t, []string{"lib", "app"}, s.AuditDirectories)
	assert.Equal(t, "out/pgraph.prom", s.MetricsTextfile)
	assert.False(t, s.KeepCompiledGraph, "compiled graph is ephemeral unless kept")
}

func TestParse_KeepCompiledGraphOffWhenAbsent(t *testing.T) {
	s, err := Parse([]byte(`{"options": {"audit_after_commit": {"value": false}}}`))
	require.NoError(t, err)
	assert.False(t, s.KeepCompiledGraph)
	assert.False(t, Defaults().KeepCompiledGraph)

	s, err = Parse([]byte(`{"options": {"keep_compiled_graph": {"value": true}}}`))
	require.NoError(t, err)
	assert.True(t, s.KeepCompiledGraph)
}

func TestParse_WrongTypeFails(t *testing.T) {
	_, err := Parse([]byte(`{"options": {"audit_after_commit": {"value": "maybe"}}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestLoad_MissingReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	s, path, err := Load(filepath.Join(dir, "settings.json"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, path)
	assert.Equal(t, Defaults(), s)
}

func TestLoad_FirstExistingWins(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("audit_after_commit: true\n"), 0644))

	s, path, err := Load(filepath.Join(dir, "settings.json"), yamlPath)
	require.NoError(t, err)
	assert.Equal(t, yamlPath, path)
	assert.True(t, s.AuditAfterCommit)
}

func TestEnsureFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project_graph", "settings.json")

	created, err := EnsureFile(path, true)
	require.NoError(t, err)
	assert.True(t, created)

	s, _, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.UpdateMemoryBankOnAudit)
	assert.True(t, s.KeepCompiledGraph)
	assert.Equal(t, map[string]bool{"typescript": true, "python": false}, s.EnabledAdapters())

	require.NoError(t, os.WriteFile(path, []byte(`{"options":{}}`), 0644))
	created, err = EnsureFile(path, false)
	require.NoError(t, err)
	assert.False(t, created)
	data, _ := os.ReadFile(path)
	assert.Equal(t, `{"options":{}}`, string(data))
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "/p"}
	assert.Equal(t, filepath.Join("/p", "project_graph", ".cache", "graph.json"), l.CompiledGraph())
	assert.Equal(t, filepath.Join("/p", "project_graph", ".cache", "history"), l.HistoryDir())
	assert.Equal(t, filepath.Join("/p", "memory-bank", "diagrams", "graph.mmd"), l.DiagramFile())
	assert.Equal(t, "src/a.ts", l.Rel(filepath.Join("/p", "src", "a.ts")))
}
