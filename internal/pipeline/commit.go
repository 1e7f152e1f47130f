package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"projectgraph/internal/aicommands"
	"projectgraph/internal/commitgroup"
	"projectgraph/internal/compile"
	"projectgraph/internal/drift"
	"projectgraph/internal/gitio"
	"projectgraph/internal/graph"
	"projectgraph/internal/history"
)

// Repo is the git surface the commit flow needs.
type Repo interface {
	commitgroup.Index
	StagedFiles() ([]string, error)
}

// CommitOptions configure Commit. Repo defaults to the go-git repository
// containing Root.
type CommitOptions struct {
	Options
	Repo   Repo
	DryRun bool
}

// CommitOutcome reports the plan and what was committed.
type CommitOutcome struct {
	Staged  []string
	Plan    commitgroup.Plan
	Results []commitgroup.Result
	// Audit is set when audit_after_commit ran.
	Audit *drift.Report
}

// compileScratch compiles the graph into a private file under the cache
// directory and removes it again. The shared compiled graph is untouched.
func (r *run) compileScratch(ctx context.Context) (*graph.Document, error) {
	if err := os.MkdirAll(r.layout.CacheDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	f, err := os.CreateTemp(r.layout.CacheDir(), "graph-*.json")
	if err != nil {
		return nil, fmt.Errorf("creating scratch graph: %w", err)
	}
	f.Close()
	defer os.Remove(f.Name())
	return compile.Run(ctx, r.opts.Compiler, r.layout.Source(), f.Name())
}

// Commit partitions the staged files into commit groups and commits each
// group in order. On failure the returned outcome lists the commits that
// were made before it.
func Commit(ctx context.Context, opts CommitOptions) (*CommitOutcome, error) {
	r, err := newRun(opts.Options)
	if err != nil {
		return nil, err
	}
	if err := r.loadSettings(); err != nil {
		return nil, err
	}
	doc, err := r.compileScratch(ctx)
	if err != nil {
		return nil, err
	}

	repo := opts.Repo
	if repo == nil {
		g, err := gitio.Open(r.layout.Root)
		if err != nil {
			return nil, err
		}
		repo = g
	}
	staged, err := repo.StagedFiles()
	if err != nil {
		return nil, err
	}
	out := &CommitOutcome{Staged: staged, Plan: commitgroup.Partition(staged, doc.CommitGroups)}
	if len(staged) == 0 || opts.DryRun {
		return out, nil
	}

	results, err := (&commitgroup.Committer{Index: repo, Logger: r.logger}).Commit(ctx, out.Plan)
	out.Results = results
	for _, res := range results {
		r.metrics.Commit(res.Bucket)
	}

	store, closeStore := r.openHistory()
	defer closeStore()
	payload := map[string]any{"commits": commitPayload(results)}
	var ce *commitgroup.CommitError
	if errors.As(err, &ce) {
		payload["failedBucket"] = ce.Bucket
		payload["failedStep"] = ce.Step
	}
	store.Record(nil, r.event(history.EventCommitGrouped, payload))

	if err != nil {
		r.writeMetrics()
		return out, err
	}

	if r.settings.AuditAfterCommit {
		var files []string
		for _, res := range results {
			files = append(files, res.Files...)
		}
		r.opts.Files = files
		report, err := r.audit(doc.Declared())
		if err != nil {
			r.logger.Warn("post-commit audit failed", "error", err)
		} else {
			out.Audit = &report
			r.recordAudit(store, report)
		}
	}
	r.writeMetrics()
	return out, nil
}

func commitPayload(results []commitgroup.Result) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]any{"bucket": res.Bucket, "hash": res.Hash, "files": len(res.Files)})
	}
	return out
}

// SyncAICommands appends the graph's AI command mappings to every platform
// rule file present under the project root.
func SyncAICommands(ctx context.Context, opts Options) ([]aicommands.Synced, error) {
	r, err := newRun(opts)
	if err != nil {
		return nil, err
	}
	doc, err := r.compileScratch(ctx)
	if err != nil {
		return nil, err
	}
	return aicommands.Sync(r.layout.Root, doc.AICommands, r.opts.Now(), r.logger)
}
