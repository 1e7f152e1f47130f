// Package pipeline orchestrates a reconciliation run: compile the declared
// graph, validate it, observe the source tree, reconcile the two and persist
// history and artifacts.
//
// Only compile and validation failures abort a run. History, rendering and
// metrics are best-effort and surface as WARN records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"projectgraph/internal/adapter"
	_ "projectgraph/internal/adapter/python"
	_ "projectgraph/internal/adapter/typescript"
	"projectgraph/internal/compile"
	"projectgraph/internal/drift"
	"projectgraph/internal/gitio"
	"projectgraph/internal/graph"
	"projectgraph/internal/history"
	"projectgraph/internal/metrics"
	"projectgraph/internal/settings"
	"projectgraph/internal/validate"
)

// Options configure a run. Zero values select the production defaults.
type Options struct {
	Root     string
	Compiler compile.Compiler
	Registry *adapter.Registry

	// KeepCompiled keeps the compiled graph regardless of settings.
	KeepCompiled bool
	// ChangedOnly forces an incremental audit of the files changed since HEAD.
	ChangedOnly bool
	// Files, when non-nil, is the explicit incremental audit list.
	Files []string
	// ChangedFiles lists files changed since HEAD; defaults to go-git status.
	ChangedFiles func() ([]string, error)

	Now    func() time.Time
	Logger *slog.Logger
}

// Outcome summarises a Generate or Audit run.
type Outcome struct {
	RunID    string
	Settings settings.Settings
	Document *graph.Document
	Warnings []validate.Warning
	Observed *graph.Graph
	Adapters []adapter.Outcome
	// Audit is the file-level audit; Drift the entity-level reconciliation.
	Audit        drift.Report
	Drift        drift.Report
	Artifacts    []string
	CompiledKept bool
}

type run struct {
	opts     Options
	layout   settings.Layout
	settings settings.Settings
	logger   *slog.Logger
	metrics  *metrics.Run
	runID    string
}

func newRun(opts Options) (*run, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	layout, err := settings.NewLayout(root)
	if err != nil {
		return nil, err
	}
	if opts.Compiler == nil {
		opts.Compiler = compile.Jsonnet{Now: opts.Now}
	}
	if opts.Registry == nil {
		opts.Registry = adapter.DefaultRegistry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &run{
		opts:    opts,
		layout:  layout,
		logger:  logger.With("run", id),
		metrics: metrics.NewRun(),
		runID:   id,
	}, nil
}

// loadSettings reads the settings file. A missing file means defaults.
func (r *run) loadSettings() error {
	s, path, err := settings.Load(r.layout.SettingsFiles()...)
	switch {
	case errors.Is(err, settings.ErrNotFound):
		r.logger.Warn("settings file not found, using defaults", "path", r.layout.Rel(r.layout.SettingsFiles()[0]))
	case err != nil:
		return err
	default:
		r.logger.Debug("loaded settings", "path", r.layout.Rel(path))
	}
	r.settings = s
	return nil
}

// ensureSettings writes the default settings document when no settings file
// exists yet.
func (r *run) ensureSettings() {
	for _, p := range r.layout.SettingsFiles() {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}
	path := r.layout.SettingsFiles()[0]
	created, err := settings.EnsureFile(path, r.layout.HasMemoryBank())
	if err != nil {
		r.logger.Warn("default settings not written", "error", err)
		return
	}
	if created {
		r.logger.Info("generated default settings", "path", r.layout.Rel(path))
	}
}

func (r *run) compile(ctx context.Context) (*graph.Document, error) {
	r.logger.Info("compiling graph", "source", r.layout.Rel(r.layout.Source()))
	return compile.Run(ctx, r.opts.Compiler, r.layout.Source(), r.layout.CompiledGraph())
}

func (r *run) keepCompiled() bool {
	return r.opts.KeepCompiled || r.settings.KeepCompiledGraph
}

// cleanup removes the compiled graph unless it is kept.
func (r *run) cleanup() bool {
	if r.keepCompiled() {
		r.logger.Info("compiled graph kept", "path", r.layout.Rel(r.layout.CompiledGraph()))
		return true
	}
	if err := os.Remove(r.layout.CompiledGraph()); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("compiled graph not removed", "error", err)
	}
	return false
}

func (r *run) discardCompiled() {
	os.Remove(r.layout.CompiledGraph())
}

// openHistory returns the store with its index attached when the index can
// be opened. The returned func closes the index.
func (r *run) openHistory() (*history.Store, func()) {
	return OpenHistory(r.layout, r.logger)
}

// OpenHistory opens the history store of a project layout. A failure to
// open the SQLite index is logged and leaves the store file-only.
func OpenHistory(layout settings.Layout, logger *slog.Logger) (*history.Store, func()) {
	s := &history.Store{Dir: layout.HistoryDir(), EventsPath: layout.EventsLog(), Logger: logger}
	if err := os.MkdirAll(layout.CacheDir(), 0755); err != nil {
		logger.Warn("history index unavailable", "error", err)
		return s, func() {}
	}
	ix, err := history.OpenIndex(layout.HistoryIndex())
	if err != nil {
		logger.Warn("history index unavailable", "error", err)
		return s, func() {}
	}
	s.Index = ix
	return s, func() { ix.Close() }
}

func (r *run) event(kind string, payload map[string]any) history.Event {
	return history.Event{TS: r.opts.Now(), RunID: r.runID, Kind: kind, Payload: payload}
}

func (r *run) writeMetrics() {
	path := r.settings.MetricsTextfile
	if path == "" {
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.layout.Root, path)
	}
	r.metrics.Finish(r.opts.Now())
	if err := r.metrics.WriteTextfile(path); err != nil {
		r.logger.Warn("metrics not written", "error", err)
	}
}

// ChangedFiles lists files changed since HEAD in the repository at root.
func ChangedFiles(root string) ([]string, error) {
	repo, err := gitio.Open(root)
	if err != nil {
		return nil, err
	}
	return repo.ChangedFiles()
}

func (r *run) auditScope() drift.Scope {
	scope := drift.Scope{
		Root:    r.layout.Root,
		Dirs:    r.settings.AuditDirectories,
		Exclude: r.settings.AuditExcludePatterns,
		Files:   r.opts.Files,
	}
	if scope.Files != nil || !(r.opts.ChangedOnly || r.settings.AuditChangedOnly) {
		return scope
	}
	changed := r.opts.ChangedFiles
	if changed == nil {
		changed = func() ([]string, error) { return ChangedFiles(r.layout.Root) }
	}
	files, err := changed()
	if err != nil {
		r.logger.Warn("changed files unavailable, auditing none", "error", err)
	}
	if files == nil {
		files = []string{}
	}
	scope.Files = files
	return scope
}

// audit runs the file audit and appends the audit log line when configured.
func (r *run) audit(declared *graph.Graph) (drift.Report, error) {
	scope := r.auditScope()
	report, err := drift.Audit(declared, scope)
	if err != nil {
		return report, fmt.Errorf("auditing files: %w", err)
	}
	r.logger.Info("audit complete", "mode", report.Mode,
		"observed_not_declared", len(report.ObservedNotDeclared),
		"declared_not_observed", len(report.DeclaredNotObserved))

	if r.settings.UpdateMemoryBankOnAudit {
		if err := appendAuditLog(r.layout, r.opts.Now(), report); err != nil {
			r.logger.Warn("audit log not updated", "error", err)
		} else {
			r.logger.Debug("audit logged", "path", r.layout.Rel(r.layout.AuditLog()))
		}
	}
	return report, nil
}
