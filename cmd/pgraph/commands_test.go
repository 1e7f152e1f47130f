package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"projectgraph/internal/history"
	"projectgraph/internal/settings"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootDir, verbose, graphPath, historyOutput = ".", false, "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// TestRootCommand tests that the root command is properly configured
func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "pgraph" {
		t.Errorf("expected Use 'pgraph', got %q", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("Short description should not be empty")
	}
	if rootCmd.PersistentFlags().Lookup("root") == nil {
		t.Error("expected persistent --root flag")
	}
	if rootCmd.PersistentFlags().Lookup("verbose") == nil {
		t.Error("expected persistent --verbose flag")
	}
}

// TestSubcommands tests that every command is registered with a RunE
func TestSubcommands(t *testing.T) {
	want := map[string]*cobra.Command{
		"generate":         generateCmd,
		"audit":            auditCmd,
		"validate":         validateCmd,
		"commit":           commitCmd,
		"sync-ai-commands": syncAICommandsCmd,
	}
	for use, cmd := range want {
		if cmd.Use != use {
			t.Errorf("expected Use %q, got %q", use, cmd.Use)
		}
		if cmd.RunE == nil {
			t.Errorf("%s: RunE should not be nil", use)
		}
		if found, _, err := rootCmd.Find([]string{use}); err != nil || found != cmd {
			t.Errorf("%s is not registered on the root command", use)
		}
	}
	if !historyCmd.HasSubCommands() {
		t.Error("history should have subcommands")
	}
}

// TestFlags tests command-specific flags
func TestFlags(t *testing.T) {
	cases := []struct {
		cmd  *cobra.Command
		flag string
	}{
		{generateCmd, "keep-compiled"},
		{auditCmd, "changed-only"},
		{auditCmd, "files"},
		{validateCmd, "graph"},
		{commitCmd, "dry-run"},
		{historyExportCmd, "out"},
	}
	for _, c := range cases {
		if c.cmd.Flags().Lookup(c.flag) == nil {
			t.Errorf("%s: missing --%s flag", c.cmd.Name(), c.flag)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestValidate_PrintsEveryIssue(t *testing.T) {
	dir := t.TempDir()
	graph := filepath.Join(dir, "graph.json")
	writeFile(t, graph, `{
		"entities": {"src/a.ts": {"type": "SourceFile", "path": "src/a.ts"}},
		"relations": {"r": {"from": "src/a.ts", "to": "src/missing.ts", "type": "uses"}}
	}`)

	out, err := execute(t, "validate", "--root", dir, "--graph", graph)
	if err == nil {
		t.Fatal("expected an error for an invalid graph")
	}
	if !strings.Contains(err.Error(), "2 validation issue(s)") {
		t.Errorf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"- Entity 'src/a.ts' is missing a 'purpose'.",
		"- Relation 'r' has an invalid or missing 'to' entity: 'src/missing.ts'.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_ValidGraph(t *testing.T) {
	dir := t.TempDir()
	graph := filepath.Join(dir, "graph.json")
	writeFile(t, graph, `{"entities": {"src/a.ts": {"type": "SourceFile", "path": "src/a.ts", "purpose": "entry"}}, "relations": {}}`)

	out, err := execute(t, "validate", "--root", dir, "--graph", graph)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Graph is valid.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHistory_ListReindexExport(t *testing.T) {
	dir := t.TempDir()
	layout, err := settings.NewLayout(dir)
	if err != nil {
		t.Fatal(err)
	}
	store := &history.Store{Dir: layout.HistoryDir(), EventsPath: layout.EventsLog()}
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if _, err := store.Snapshot([]byte(`{"entities":{}}`), ts); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendEvent(history.Event{TS: ts, Kind: history.EventGraphGenerated}); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "history", "reindex", "--root", dir)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if !strings.Contains(out, "Indexed 1 snapshot and 1 event.") {
		t.Errorf("unexpected reindex output: %s", out)
	}

	out, err = execute(t, "history", "list", "--root", dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "graph-20250102030405.json") {
		t.Errorf("list output missing snapshot:\n%s", out)
	}
	if !strings.Contains(out, "graph_generated: 1 event, last 2025-01-02 03:04:05") {
		t.Errorf("list output missing event count:\n%s", out)
	}

	archive := filepath.Join(dir, "history.tar.zst")
	out, err = execute(t, "history", "export", "--root", dir, "--out", archive)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Exported 2 files") {
		t.Errorf("unexpected export output: %s", out)
	}
	if info, err := os.Stat(archive); err != nil || info.Size() == 0 {
		t.Errorf("archive not written: %v", err)
	}
}

func TestHistory_ListEmpty(t *testing.T) {
	out, err := execute(t, "history", "list", "--root", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No snapshots.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestShortHash(t *testing.T) {
	if got := shortHash("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortHash = %q", got)
	}
	if got := shortHash("abc"); got != "abc" {
		t.Errorf("shortHash = %q", got)
	}
}

func TestPlural(t *testing.T) {
	if got := plural(1, "event"); got != "1 event" {
		t.Errorf("plural(1) = %q", got)
	}
	if got := plural(3, "file"); got != "3 files" {
		t.Errorf("plural(3) = %q", got)
	}
}
