// Package publish is the version-control collaborator: clone, branch,
// commit, push, and pull-request creation. Sichter treats these operations
// as an opaque capability; the CLI implementation shells out to git and gh.
package publish

import (
	"context"
	"time"
)

// Publisher is the capability the job processor delegates to.
type Publisher interface {
	// EnsureWorkTree clones repo (org/name) when absent and returns the
	// local work-tree path.
	EnsureWorkTree(ctx context.Context, repo string) (string, error)
	// DefaultBranch names the default remote branch of the work tree.
	DefaultBranch(ctx context.Context, dir string) (string, error)
	// FreshBranch fetches, detaches onto the default remote branch, and
	// creates the named work branch.
	FreshBranch(ctx context.Context, dir, branch string) error
	// ChangedFiles lists paths changed versus the default remote branch,
	// relative to the repository root.
	ChangedFiles(ctx context.Context, dir string) ([]string, error)
	// CommitIfChanges stages everything and commits when the work tree
	// differs from HEAD. Reports whether a commit was made.
	CommitIfChanges(ctx context.Context, dir, message string) (bool, error)
	// Push publishes the branch with lease-safe semantics.
	Push(ctx context.Context, dir, branch string) error
	// CreateOrUpdatePR ensures a pull request exists for the branch and
	// returns its URL (may be empty when unknown).
	CreateOrUpdatePR(ctx context.Context, dir, repo, branch string) (string, error)
	// ListRemote enumerates the organization's repositories as org/name.
	ListRemote(ctx context.Context, org string) ([]string, error)
	// ListLocal enumerates already-cloned repositories as org/name.
	ListLocal() ([]string, error)
}

// BranchName builds the work branch name for a run started at ts.
func BranchName(ts time.Time) string {
	return "sichter/autofix-" + ts.UTC().Format("20060102-150405")
}
