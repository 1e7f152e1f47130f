package settings

import (
	"os"
	"path/filepath"
)

const (
	graphDirName      = "project_graph"
	cacheDirName      = ".cache"
	memoryBankDirName = "memory-bank"
)

// Layout derives every path the engine reads or writes from the project root.
type Layout struct {
	Root string
}

// NewLayout returns a layout rooted at an absolute form of root.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: abs}, nil
}

func (l Layout) GraphDir() string      { return filepath.Join(l.Root, graphDirName) }
func (l Layout) Source() string        { return filepath.Join(l.GraphDir(), "project_graph.jsonnet") }
func (l Layout) CacheDir() string      { return filepath.Join(l.GraphDir(), cacheDirName) }
func (l Layout) CompiledGraph() string { return filepath.Join(l.CacheDir(), "graph.json") }
func (l Layout) HistoryDir() string    { return filepath.Join(l.CacheDir(), "history") }
func (l Layout) EventsLog() string     { return filepath.Join(l.CacheDir(), "events.ndjson") }
func (l Layout) HistoryIndex() string  { return filepath.Join(l.CacheDir(), "history.sqlite") }
func (l Layout) Readme() string        { return filepath.Join(l.GraphDir(), "README.md") }
func (l Layout) MemoryBankDir() string { return filepath.Join(l.Root, memoryBankDirName) }
func (l Layout) PlansDir() string      { return filepath.Join(l.MemoryBankDir(), "plans") }
func (l Layout) DiagramFile() string {
	return filepath.Join(l.MemoryBankDir(), "diagrams", "graph.mmd")
}
func (l Layout) DriftSummary() string { return filepath.Join(l.MemoryBankDir(), "drift.md") }
func (l Layout) AuditLog() string     { return filepath.Join(l.MemoryBankDir(), "audit_logs.md") }

// SettingsFiles lists candidate settings files in lookup order.
func (l Layout) SettingsFiles() []string {
	return []string{
		filepath.Join(l.GraphDir(), "settings.json"),
		filepath.Join(l.GraphDir(), "settings.yaml"),
	}
}

// HasMemoryBank reports whether the project keeps a memory-bank directory.
func (l Layout) HasMemoryBank() bool {
	info, err := os.Stat(l.MemoryBankDir())
	return err == nil && info.IsDir()
}

// Rel returns p relative to the root in forward-slash form, or p unchanged
// when it lies outside the root.
func (l Layout) Rel(p string) string {
	rel, err := filepath.Rel(l.Root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
