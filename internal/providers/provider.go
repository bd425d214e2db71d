package providers

import (
	"context"
	"fmt"

	"github.com/changesmith/internal/providers/github"
	"github.com/changesmith/internal/providers/gitlab"
	"github.com/changesmith/pkg/models"
	"github.com/changesmith/pkg/shared"
)

// Host is the source-control collaborator boundary. Every operation is
// synchronous and independently failable; callers decide what a failure
// means for their workflow.
type Host interface {
	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context) (string, error)

	// ListTree returns every blob in the tree at ref as a flat candidate
	// list. Directories are not included.
	ListTree(ctx context.Context, ref string) ([]models.RepoEntry, error)

	// GetFileContent fetches one file's content at ref.
	GetFileContent(ctx context.Context, path, ref string) (string, error)

	// BranchExists reports whether a branch already exists on the host.
	BranchExists(ctx context.Context, name string) (bool, error)

	// CreateBranch creates a branch named name from the head of base.
	CreateBranch(ctx context.Context, base, name string) error

	// CreateOrUpdateFile writes content to path on branch, creating the
	// file when it does not exist.
	CreateOrUpdateFile(ctx context.Context, path, content, branch, message string) error

	// DeleteFile removes path on branch.
	DeleteFile(ctx context.Context, path, branch, message string) error

	// OpenChangeRequest opens a PR/MR from head into base.
	OpenChangeRequest(ctx context.Context, title, body, head, base string) (*models.ChangeRequest, error)

	// MergeChangeRequest merges an open change request. Method is one of
	// merge, squash, rebase.
	MergeChangeRequest(ctx context.Context, number int, method string) (*models.MergeResult, error)

	// CreateRevert opens a change request that reverts a previously merged
	// change request.
	CreateRevert(ctx context.Context, number int) (*models.ChangeRequest, error)

	// CreateRepository creates a new repository for the authenticated user.
	CreateRepository(ctx context.Context, name, description string, private bool) (*models.Repository, error)
}

// New builds a Host for the configured provider.
func New(creds shared.HostCredentials) (Host, error) {
	switch creds.Provider {
	case "github":
		return github.New(github.Config{
			Repo:    creds.Repo,
			Token:   creds.Token,
			BaseURL: creds.BaseURL,
		})
	case "gitlab":
		return gitlab.New(gitlab.Config{
			Project: creds.Repo,
			Token:   creds.Token,
			BaseURL: creds.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported host provider: %s", creds.Provider)
	}
}
