// Package settings loads the per-project settings document. Settings are read
// once per run and passed by value to every component that needs them.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"projectgraph/internal/cas"
)

// Option names recognised in the settings document.
const (
	OptAuditAfterCommit        = "audit_after_commit"
	OptUpdateMemoryBankOnAudit = "update_memory_bank_on_audit"
	OptKeepCompiledGraph       = "keep_compiled_graph"
	OptAuditExcludePatterns    = "audit_exclude_patterns"
	OptAuditChangedOnly        = "audit_changed_only"
	OptAuditDirectories        = "audit_directories"
	OptAdapters                = "adapters"
	OptMetricsTextfile         = "metrics_textfile"
)

// AdapterSetting toggles one source adapter.
type AdapterSetting struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Settings is the decoded settings document.
type Settings struct {
	AuditAfterCommit        bool
	UpdateMemoryBankOnAudit bool
	KeepCompiledGraph       bool
	AuditExcludePatterns    []string
	AuditChangedOnly        bool
	AuditDirectories        []string
	Adapters                map[string]AdapterSetting
	MetricsTextfile         string
}

// DefaultAuditDirectories are the top-level directories a full audit scans.
var DefaultAuditDirectories = []string{"src", "electron", "test", "public"}

// Defaults returns the settings used when no document exists. Options a
// document leaves out keep these values.
func Defaults() Settings {
	return Settings{
		AuditExcludePatterns: []string{"**/*.map", "**/*.log"},
		AuditDirectories:     append([]string(nil), DefaultAuditDirectories...),
		Adapters: map[string]AdapterSetting{
			"typescript": {Enabled: true},
			"python":     {Enabled: false},
		},
	}
}

// EnabledAdapters returns the adapter names switched on.
func (s Settings) EnabledAdapters() map[string]bool {
	out := make(map[string]bool, len(s.Adapters))
	for name, a := range s.Adapters {
		out[name] = a.Enabled
	}
	return out
}

// ErrNotFound is returned by Load when no settings file exists.
var ErrNotFound = errors.New("settings file not found")

// Load reads the first existing settings file in paths. When none exists it
// returns Defaults() together with ErrNotFound so the caller can warn.
func Load(paths ...string) (Settings, string, error) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Defaults(), p, fmt.Errorf("reading settings %s: %w", p, err)
		}
		s, err := Parse(data)
		if err != nil {
			return Defaults(), p, fmt.Errorf("parsing settings %s: %w", p, err)
		}
		return s, p, nil
	}
	return Defaults(), "", ErrNotFound
}

// Parse decodes a settings document. Two shapes are accepted: the envelope
// {"options": {"name": {"value": ..., "description": ...}}} and a flat
// {"name": value} mapping. JSON documents parse as YAML.
func Parse(data []byte) (Settings, error) {
	s := Defaults()

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return s, err
	}
	if len(root.Content) == 0 {
		return s, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return s, fmt.Errorf("settings must be a mapping")
	}

	opts := top
	if n := mappingValue(top, "options"); n != nil && n.Kind == yaml.MappingNode {
		opts = n
	}

	for i := 0; i+1 < len(opts.Content); i += 2 {
		name := opts.Content[i].Value
		val := opts.Content[i+1]
		if val.Kind == yaml.MappingNode {
			if inner := mappingValue(val, "value"); inner != nil {
				val = inner
			}
		}
		if err := s.set(name, val); err != nil {
			return s, fmt.Errorf("option %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *Settings) set(name string, val *yaml.Node) error {
	switch name {
	case OptAuditAfterCommit:
		return val.Decode(&s.AuditAfterCommit)
	case OptUpdateMemoryBankOnAudit:
		return val.Decode(&s.UpdateMemoryBankOnAudit)
	case OptKeepCompiledGraph:
		return val.Decode(&s.KeepCompiledGraph)
	case OptAuditExcludePatterns:
		s.AuditExcludePatterns = nil
		return val.Decode(&s.AuditExcludePatterns)
	case OptAuditChangedOnly:
		return val.Decode(&s.AuditChangedOnly)
	case OptAuditDirectories:
		s.AuditDirectories = nil
		return val.Decode(&s.AuditDirectories)
	case OptAdapters:
		adapters := make(map[string]AdapterSetting)
		if err := val.Decode(&adapters); err != nil {
			return err
		}
		s.Adapters = adapters
	case OptMetricsTextfile:
		return val.Decode(&s.MetricsTextfile)
	}
	// Unknown options are kept in the file but ignored here.
	return nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

type optionDoc struct {
	Value       any    `json:"value"`
	Description string `json:"description"`
}

type fileDoc struct {
	SettingsFileMetadata map[string]string    `json:"settingsFileMetadata"`
	Options              map[string]optionDoc `json:"options"`
}

// DefaultDocument renders the default settings in the envelope shape.
// memoryBank switches update_memory_bank_on_audit on for projects that
// already keep a memory-bank directory.
func DefaultDocument(memoryBank bool) ([]byte, error) {
	d := Defaults()
	doc := fileDoc{
		SettingsFileMetadata: map[string]string{
			"description": "Project graph settings. Each option holds a value and a description.",
		},
		Options: map[string]optionDoc{
			OptAuditAfterCommit:        {d.AuditAfterCommit, "Run an incremental audit of committed files after pgraph commit."},
			OptUpdateMemoryBankOnAudit: {memoryBank, "Append a line to memory-bank/audit_logs.md after each audit."},
			OptKeepCompiledGraph:       {true, "Keep the compiled graph JSON at project_graph/.cache/graph.json."},
			OptAuditExcludePatterns:    {d.AuditExcludePatterns, "Glob patterns to exclude from audits."},
			OptAuditChangedOnly:        {d.AuditChangedOnly, "Audit only files changed since HEAD instead of the audit directories."},
			OptAuditDirectories:        {d.AuditDirectories, "Top-level directories scanned by a full audit."},
			OptAdapters:                {d.Adapters, "Source adapters used to build the observed graph."},
		},
	}
	return cas.IndentJSON(doc)
}

// EnsureFile writes the default settings document to path unless a file is
// already there. It reports whether a file was created.
func EnsureFile(path string, memoryBank bool) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking settings %s: %w", path, err)
	}
	data, err := DefaultDocument(memoryBank)
	if err != nil {
		return false, fmt.Errorf("encoding default settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("writing settings %s: %w", path, err)
	}
	return true, nil
}
