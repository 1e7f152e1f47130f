package pipeline

import (
	"context"
	"errors"
	"os"

	"projectgraph/internal/adapter"
	"projectgraph/internal/cas"
	"projectgraph/internal/drift"
	"projectgraph/internal/graph"
	"projectgraph/internal/history"
	"projectgraph/internal/validate"
)

// Generate runs the full reconciliation: compile, validate, observe, audit,
// reconcile, record history and render artifacts.
func Generate(ctx context.Context, opts Options) (*Outcome, error) {
	r, err := newRun(opts)
	if err != nil {
		return nil, err
	}

	doc, err := r.compile(ctx)
	if err != nil {
		return nil, err
	}
	r.ensureSettings()
	if err := r.loadSettings(); err != nil {
		r.discardCompiled()
		return nil, err
	}

	res, err := validate.Validate(doc, validate.Options{Root: r.layout.Root})
	for _, w := range res.Warnings {
		r.logger.Warn(w.Message)
	}
	if err != nil {
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			r.metrics.ValidationIssues(len(verr.Issues))
			r.writeMetrics()
		}
		r.discardCompiled()
		return nil, err
	}

	out := &Outcome{RunID: r.runID, Settings: r.settings, Document: doc, Warnings: res.Warnings}

	ar := adapter.Run(ctx, r.layout.Root, r.opts.Registry, r.settings.EnabledAdapters(), r.logger)
	out.Observed = ar.Observed
	out.Adapters = ar.Outcomes
	for _, o := range ar.Outcomes {
		r.metrics.Adapter(o.Name, o.Err)
	}
	ents, rels := ar.Observed.Len()
	r.metrics.Observed(ents, rels)

	if out.Audit, err = r.audit(doc.Declared()); err != nil {
		r.discardCompiled()
		return nil, err
	}

	out.Drift = drift.Compute(doc.Declared(), ar.Observed).Exclude(r.settings.AuditExcludePatterns)
	r.metrics.Drift(len(out.Drift.ObservedNotDeclared), len(out.Drift.DeclaredNotObserved))

	compiled, err := graph.Augment(doc.Raw, map[string]any{"observed": ar.Observed, "drift": out.Drift})
	if err != nil {
		r.logger.Warn("observed graph not attached", "error", err)
		compiled = doc.Raw
	} else if err := os.WriteFile(r.layout.CompiledGraph(), compiled, 0644); err != nil {
		r.logger.Warn("observed graph not attached", "error", err)
	}

	payload := map[string]any{
		"observedCounts": map[string]int{"entities": ents, "relations": rels},
		"drift":          out.Drift,
	}
	if digest, err := cas.DigestJSON(doc.Declared()); err != nil {
		r.logger.Warn("declared graph digest failed", "error", err)
	} else {
		payload["declaredDigest"] = digest
	}
	store, closeStore := r.openHistory()
	store.Record(compiled, r.event(history.EventGraphGenerated, payload))
	closeStore()

	out.Artifacts = r.renderArtifacts(doc, ar.Observed, out.Drift)
	r.writeMetrics()
	out.CompiledKept = r.cleanup()
	return out, nil
}

// Audit compiles the graph and runs only the file audit. It is the fast
// path for pre-commit checks.
func Audit(ctx context.Context, opts Options) (*Outcome, error) {
	r, err := newRun(opts)
	if err != nil {
		return nil, err
	}
	doc, err := r.compile(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.loadSettings(); err != nil {
		r.discardCompiled()
		return nil, err
	}

	report, err := r.audit(doc.Declared())
	if err != nil {
		r.discardCompiled()
		return nil, err
	}
	r.metrics.Drift(len(report.ObservedNotDeclared), len(report.DeclaredNotObserved))

	store, closeStore := r.openHistory()
	r.recordAudit(store, report)
	closeStore()

	r.writeMetrics()
	return &Outcome{
		RunID:        r.runID,
		Settings:     r.settings,
		Document:     doc,
		Audit:        report,
		CompiledKept: r.cleanup(),
	}, nil
}

func (r *run) recordAudit(store *history.Store, report drift.Report) {
	store.Record(nil, r.event(history.EventAuditPerformed, map[string]any{
		"mode":                report.Mode,
		"observedNotDeclared": len(report.ObservedNotDeclared),
		"declaredNotObserved": len(report.DeclaredNotObserved),
	}))
}
