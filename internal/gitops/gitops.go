// Package gitops wraps the git plumbing the bulk-patch workflow needs:
// cloning a private working copy, switching to the feature branch,
// committing everything and pushing. It is intentionally thin; all decisions
// about what to change live in the patch engine.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/gopasspw/gopass/pkg/debug"
)

// Auth carries the basic-auth credentials used for clone and push.
type Auth struct {
	Username string
	Password string
}

func (a *Auth) transport() *githttp.BasicAuth {
	if a == nil {
		return nil
	}

	return &githttp.BasicAuth{Username: a.Username, Password: a.Password}
}

// Workspace is a cloned repository on local disk. One workspace is created
// per target repository and never shared.
type Workspace struct {
	dir  string
	repo *git.Repository
}

// Dir returns the root directory of the working copy.
func (w *Workspace) Dir() string {
	return w.dir
}

// CloneOrOpen clones url into dir, or opens dir if it already holds a
// repository from an earlier run. A non-empty branch selects which remote
// branch to check out on clone; empty means the remote's default branch.
func CloneOrOpen(ctx context.Context, url, dir, branch string, auth *Auth) (*Workspace, error) {
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		repo, err := git.PlainOpen(dir)
		if err == nil {
			debug.Log("reusing existing clone in %s", dir)

			return &Workspace{dir: dir, repo: repo}, nil
		}
		debug.Log("%s exists but is not a repository, removing", dir)
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove stale clone dir %s: %w", dir, err)
		}
	}

	opts := &git.CloneOptions{
		URL:  url,
		Auth: auth.transport(),
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}

	return &Workspace{dir: dir, repo: repo}, nil
}

// EnsureBranch checks out the named branch, creating it from the current
// HEAD if it does not exist yet.
func (w *Workspace) EnsureBranch(name string) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(name)
	err = wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true})
	if err == nil {
		debug.Log("created branch %s", name)

		return nil
	}

	// the branch may already exist, e.g. when it was cloned directly
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", name, err)
	}

	return nil
}

// CommitAll stages every change in the working copy and commits it. It
// returns false without committing when the worktree is clean.
func (w *Workspace) CommitAll(message, authorName, authorEmail string) (bool, error) {
	wt, err := w.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		debug.Log("worktree is clean, nothing to commit")

		return false, nil
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}

	sig := &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}

	return true, nil
}

// Push uploads the branch to origin. An up-to-date remote is not an error.
func (w *Workspace) Push(ctx context.Context, branch string, auth *Auth, force bool) error {
	spec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		spec = "+" + spec
	}

	err := w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(spec)},
		Auth:       auth.transport(),
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		debug.Log("branch %s already up to date", branch)

		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}

	return nil
}
