package pipeline

import (
	"io"
	"time"

	"projectgraph/internal/aicommands"
	"projectgraph/internal/drift"
	"projectgraph/internal/graph"
	"projectgraph/internal/render"
	"projectgraph/internal/settings"
)

func appendAuditLog(layout settings.Layout, now time.Time, report drift.Report) error {
	return render.AppendLine(layout.AuditLog(), render.AuditLogLine(now, report.Mode, report.InSync()))
}

// renderArtifacts writes the diagram, drift summary, README sections and
// plans. Each artifact fails on its own; the paths written are returned.
func (r *run) renderArtifacts(doc *graph.Document, observed *graph.Graph, report drift.Report) []string {
	now := r.opts.Now()
	var written []string
	step := func(name, path string, fn func() error) {
		if err := fn(); err != nil {
			r.logger.Warn("artifact not written", "artifact", name, "error", err)
			return
		}
		r.logger.Debug("artifact written", "artifact", name, "path", r.layout.Rel(path))
		written = append(written, path)
	}

	step("diagram", r.layout.DiagramFile(), func() error {
		return render.WriteFile(r.layout.DiagramFile(), func(w io.Writer) error {
			return render.WriteMermaid(w, render.Edges(doc, observed))
		})
	})
	step("drift summary", r.layout.DriftSummary(), func() error {
		return render.WriteFile(r.layout.DriftSummary(), func(w io.Writer) error {
			return render.WriteDriftSummary(w, report, now)
		})
	})
	step("readme", r.layout.Readme(), func() error {
		if doc.AICommands != nil {
			section := aicommands.ReadmeSection(r.layout.Root, doc.AICommands, r.logger)
			if err := render.UpdateFileSection(r.layout.Readme(), "AI Assistant Command Mapping", section); err != nil {
				return err
			}
		}
		return render.UpdateFileSection(r.layout.Readme(), "Drift", render.DriftSection(report))
	})

	plans, err := render.WritePlans(r.layout.PlansDir(), doc.Plans, now)
	if err != nil {
		r.logger.Warn("artifact not written", "artifact", "plans", "error", err)
	}
	written = append(written, plans...)
	return written
}
