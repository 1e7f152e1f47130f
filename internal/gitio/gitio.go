// Package gitio provides the index, commit and status operations the commit
// partitioner needs, on top of go-git.
package gitio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Fallback identity used when git config has no user.
const (
	DefaultAuthorName  = "pgraph"
	DefaultAuthorEmail = "pgraph@localhost"
)

// Repository wraps a go-git repository with a worktree.
type Repository struct {
	repo *git.Repository
	wt   *git.Worktree
	root string
	// Now stamps commits; defaults to time.Now.
	Now func() time.Time
}

// Open opens the repository containing path.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	return &Repository{repo: repo, wt: wt, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root.
func (r *Repository) Root() string { return r.root }

// Reset unstages everything: the index is reset to HEAD, or emptied when the
// branch has no commits yet. The worktree is untouched.
func (r *Repository) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		if err := r.repo.Storer.SetIndex(&index.Index{Version: 2}); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}
	if err := r.wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.MixedReset}); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	return nil
}

// Add stages each path from the worktree. A path missing from the worktree
// is staged as a deletion.
func (r *Repository) Add(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := os.Lstat(filepath.Join(r.root, filepath.FromSlash(p)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if _, err := r.wt.Remove(p); err != nil {
				return fmt.Errorf("staging deletion of %s: %w", p, err)
			}
		case err != nil:
			return fmt.Errorf("stat %s: %w", p, err)
		default:
			if _, err := r.wt.Add(p); err != nil {
				return fmt.Errorf("staging %s: %w", p, err)
			}
		}
	}
	return nil
}

// Commit records the index as a new commit and returns its hash.
func (r *Repository) Commit(ctx context.Context, msg string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sig := r.signature()
	hash, err := r.wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

func (r *Repository) signature() *object.Signature {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	sig := &object.Signature{Name: DefaultAuthorName, Email: DefaultAuthorEmail, When: now()}
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}

// StagedFiles lists paths whose index entry differs from HEAD, sorted.
func (r *Repository) StagedFiles() ([]string, error) {
	st, err := r.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var out []string
	for p, fst := range st {
		if fst.Staging != git.Unmodified && fst.Staging != git.Untracked {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ChangedFiles lists tracked paths whose index or worktree differs from
// HEAD, sorted. Untracked files are not included.
func (r *Repository) ChangedFiles() ([]string, error) {
	st, err := r.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var out []string
	for p, fst := range st {
		if fst.Staging == git.Untracked && fst.Worktree == git.Untracked {
			continue
		}
		if fst.Staging != git.Unmodified || fst.Worktree != git.Unmodified {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CommitFiles returns the paths touched by the commit with the given hash,
// compared with its first parent.
func (r *Repository) CommitFiles(hash string) ([]string, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", hash, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}
	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("getting parent: %w", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, fmt.Errorf("getting parent tree: %w", err)
		}
	}
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}
	var out []string
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
