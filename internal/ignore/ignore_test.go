package ignore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		rule  string
		path  string
		isDir bool
		want  bool
	}{
		{"*.log", "debug.log", false, true},
		{"*.log", "logs/debug.log", false, true},
		{"*.log", "debug.txt", false, false},

		{"node_modules/", "node_modules", true, true},
		{"node_modules/", "node_modules/react/index.js", false, true},
		{"node_modules/", "web/node_modules", true, true},
		{"node_modules/", "src/node_modules.ts", false, false},

		{"/build", "build", true, true},
		{"/build", "src/build", true, false},

		{"src/*.js", "src/app.js", false, true},
		{"src/*.js", "src/sub/app.js", false, false},
		{"src/**/*.js", "src/sub/app.js", false, true},

		{"*.d.ts", "src\\types\\env.d.ts", false, true},
	}

	for _, tt := range tests {
		m := New(tt.rule)
		if got := m.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("rule %q, path %q (isDir=%v): got %v, want %v", tt.rule, tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestNegationLastRuleWins(t *testing.T) {
	m := New("*.log", "!keep.log", "# comment", "   ")
	if !m.Match("a.log", false) {
		t.Error("a.log should be ignored")
	}
	if m.Match("keep.log", false) {
		t.Error("keep.log should be re-included")
	}
}

func TestLoadReadsProjectFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("generated/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, IgnoreFile), []byte("!dist/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.Match("src/generated/x.ts", false) {
		t.Error(".gitignore rule not applied")
	}
	if m.Match("dist", true) {
		t.Error(".pgraphignore negation not applied")
	}
	if !m.Match("node_modules", true) {
		t.Error("defaults not applied")
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"src/b.ts",
		"src/a.ts",
		"src/node_modules/dep/index.js",
		"src/deep/c.tsx",
		"other/skip.ts",
	} {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	err := Walk(root, "src", New(Defaults...), func(rel string) error {
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"src/a.ts", "src/b.ts", "src/deep/c.tsx"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if err := Walk(root, "missing", nil, func(string) error { t.Error("unexpected file"); return nil }); err != nil {
		t.Errorf("missing dir should be skipped, got %v", err)
	}
}
