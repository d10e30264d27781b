// Package project resolves the target repository's current HEAD for state
// snapshot provenance. Strictly read-only: no worktree management, no
// branch creation, no cloning — only open, Head(), and Status() against an
// already-materialized working tree.
package project

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// ErrNotRepository is returned when path is not inside a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Repo is a read-only handle on the repository containing a given path.
type Repo struct {
	repo *gogit.Repository
	root string
}

// Open walks up from path to find the enclosing repository root.
func Open(path string) (*Repo, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the repository's working tree root.
func (r *Repo) Root() string { return r.root }

// HeadInfo is the provenance record embedded alongside a state snapshot.
type HeadInfo struct {
	SHA    string `json:"sha"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Head resolves the current HEAD commit, branch name (empty when
// detached), and whether the working tree has uncommitted changes.
func (r *Repo) Head() (HeadInfo, error) {
	head, err := r.repo.Head()
	if err != nil {
		return HeadInfo{}, fmt.Errorf("getting HEAD: %w", err)
	}

	info := HeadInfo{SHA: head.Hash().String()}
	if head.Name() != plumbing.HEAD {
		info.Branch = head.Name().Short()
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return HeadInfo{}, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return HeadInfo{}, fmt.Errorf("getting status: %w", err)
	}
	info.Dirty = !status.IsClean()

	return info, nil
}
