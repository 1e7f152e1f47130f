package commitgroup

import (
	"context"
	"fmt"
	"log/slog"
)

// Index is the shared staging area. It is a single mutable resource, so the
// committer drives it strictly in sequence.
type Index interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, paths []string) error
	Commit(ctx context.Context, msg string) (string, error)
}

// Step names the stage of a bucket commit.
type Step string

const (
	StepReset  Step = "reset"
	StepAdd    Step = "add"
	StepCommit Step = "commit"
)

// Result is one commit that was created.
type Result struct {
	Bucket  string
	Message string
	Files   []string
	Hash    string
}

// CommitError stops a run at the first failing bucket. Commits listed in
// Committed were made before the failure and are kept.
type CommitError struct {
	Bucket    string
	Step      Step
	Err       error
	Committed []Result
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit group %s: %s failed: %v", e.Bucket, e.Step, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Committer turns a Plan into one commit per non-empty bucket.
type Committer struct {
	Index  Index
	Logger *slog.Logger
}

// Commit runs reset, add and commit for each non-empty bucket in plan order.
// The next bucket starts only after the previous commit returned.
func (c *Committer) Commit(ctx context.Context, plan Plan) ([]Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var done []Result
	for _, b := range plan.NonEmpty() {
		fail := func(step Step, err error) ([]Result, error) {
			return done, &CommitError{Bucket: b.ID, Step: step, Err: err, Committed: done}
		}
		if err := c.Index.Reset(ctx); err != nil {
			return fail(StepReset, err)
		}
		if err := c.Index.Add(ctx, b.Files); err != nil {
			return fail(StepAdd, err)
		}
		msg := b.Message()
		hash, err := c.Index.Commit(ctx, msg)
		if err != nil {
			return fail(StepCommit, err)
		}
		logger.Debug("committed group", "bucket", b.ID, "files", len(b.Files), "hash", hash)
		done = append(done, Result{Bucket: b.ID, Message: msg, Files: b.Files, Hash: hash})
	}
	return done, nil
}
