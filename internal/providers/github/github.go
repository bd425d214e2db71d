package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v72/github"
	"github.com/rs/zerolog/log"

	"github.com/changesmith/internal/llm"
	"github.com/changesmith/pkg/models"
)

// hostErr marks a GitHub API failure as an upstream fault so transports can
// report it as a bad gateway rather than an internal error.
func hostErr(err error) error {
	return &llm.ExternalServiceError{Service: "github", Err: err}
}

// Config holds everything the GitHub host needs.
type Config struct {
	Repo    string // owner/repo
	Token   string
	BaseURL string // enterprise installations only
}

// Host implements the source-control collaborator against GitHub.
type Host struct {
	client *gh.Client
	owner  string
	repo   string
}

// New creates a GitHub host for the configured repository.
func New(config Config) (*Host, error) {
	owner, repo, err := splitRepo(config.Repo)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(nil).WithAuthToken(config.Token)
	if config.BaseURL != "" {
		client, err = client.WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub base URL: %w", err)
		}
	}

	return &Host{client: client, owner: owner, repo: repo}, nil
}

func splitRepo(full string) (string, string, error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/repo", full)
	}
	return parts[0], parts[1], nil
}

func (h *Host) DefaultBranch(ctx context.Context) (string, error) {
	repo, _, err := h.client.Repositories.Get(ctx, h.owner, h.repo)
	if err != nil {
		return "", hostErr(fmt.Errorf("failed to get repository: %w", err))
	}
	return repo.GetDefaultBranch(), nil
}

func (h *Host) ListTree(ctx context.Context, ref string) ([]models.RepoEntry, error) {
	tree, _, err := h.client.Git.GetTree(ctx, h.owner, h.repo, ref, true)
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to list tree at %s: %w", ref, err))
	}

	entries := make([]models.RepoEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, models.RepoEntry{
			Path:      e.GetPath(),
			SizeBytes: int64(e.GetSize()),
		})
	}
	if tree.GetTruncated() {
		log.Warn().Str("ref", ref).Msg("GitHub tree listing truncated, candidate set is partial")
	}
	return entries, nil
}

func (h *Host) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	file, _, _, err := h.client.Repositories.GetContents(ctx, h.owner, h.repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", hostErr(fmt.Errorf("failed to fetch %s@%s: %w", path, ref, err))
	}
	if file == nil {
		return "", fmt.Errorf("%s is not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", hostErr(fmt.Errorf("failed to decode %s: %w", path, err))
	}
	return content, nil
}

func (h *Host) BranchExists(ctx context.Context, name string) (bool, error) {
	_, resp, err := h.client.Repositories.GetBranch(ctx, h.owner, h.repo, name, 0)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, hostErr(fmt.Errorf("failed to check branch %s: %w", name, err))
	}
	return true, nil
}

func (h *Host) CreateBranch(ctx context.Context, base, name string) error {
	baseRef, _, err := h.client.Git.GetRef(ctx, h.owner, h.repo, "refs/heads/"+base)
	if err != nil {
		return hostErr(fmt.Errorf("failed to resolve base branch %s: %w", base, err))
	}

	_, _, err = h.client.Git.CreateRef(ctx, h.owner, h.repo, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + name),
		Object: &gh.GitObject{SHA: baseRef.Object.SHA},
	})
	if err != nil {
		return hostErr(fmt.Errorf("failed to create branch %s: %w", name, err))
	}
	return nil
}

func (h *Host) CreateOrUpdateFile(ctx context.Context, path, content, branch, message string) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: []byte(content),
		Branch:  gh.Ptr(branch),
	}

	// An existing file needs its blob SHA for the update call.
	existing, _, resp, err := h.client.Repositories.GetContents(ctx, h.owner, h.repo, path,
		&gh.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && existing != nil:
		opts.SHA = existing.SHA
		_, _, err = h.client.Repositories.UpdateFile(ctx, h.owner, h.repo, path, opts)
	case err == nil:
		// GetContents resolves directories too; nothing writable there.
		return fmt.Errorf("%s on %s is a directory, not a file", path, branch)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		_, _, err = h.client.Repositories.CreateFile(ctx, h.owner, h.repo, path, opts)
	default:
		return hostErr(fmt.Errorf("failed to stat %s on %s: %w", path, branch, err))
	}
	if err != nil {
		return hostErr(fmt.Errorf("failed to write %s on %s: %w", path, branch, err))
	}
	return nil
}

func (h *Host) DeleteFile(ctx context.Context, path, branch, message string) error {
	existing, _, _, err := h.client.Repositories.GetContents(ctx, h.owner, h.repo, path,
		&gh.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return hostErr(fmt.Errorf("failed to stat %s on %s: %w", path, branch, err))
	}
	if existing == nil {
		return fmt.Errorf("%s is not a file", path)
	}

	_, _, err = h.client.Repositories.DeleteFile(ctx, h.owner, h.repo, path,
		&gh.RepositoryContentFileOptions{
			Message: gh.Ptr(message),
			SHA:     existing.SHA,
			Branch:  gh.Ptr(branch),
		})
	if err != nil {
		return hostErr(fmt.Errorf("failed to delete %s on %s: %w", path, branch, err))
	}
	return nil
}

func (h *Host) OpenChangeRequest(ctx context.Context, title, body, head, base string) (*models.ChangeRequest, error) {
	pr, _, err := h.client.PullRequests.Create(ctx, h.owner, h.repo, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Body:  gh.Ptr(body),
		Head:  gh.Ptr(head),
		Base:  gh.Ptr(base),
	})
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to open pull request: %w", err))
	}

	return &models.ChangeRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Branch: head,
		Title:  title,
	}, nil
}

func (h *Host) MergeChangeRequest(ctx context.Context, number int, method string) (*models.MergeResult, error) {
	result, _, err := h.client.PullRequests.Merge(ctx, h.owner, h.repo, number, "",
		&gh.PullRequestOptions{MergeMethod: method})
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to merge pull request #%d: %w", number, err))
	}

	return &models.MergeResult{
		Number:  number,
		Merged:  result.GetMerged(),
		SHA:     result.GetSHA(),
		Message: result.GetMessage(),
	}, nil
}

// CreateRevert opens a pull request that restores the base branch to the
// state before the given pull request was merged: a branch is created at
// the merge commit's first parent and proposed back into base.
func (h *Host) CreateRevert(ctx context.Context, number int) (*models.ChangeRequest, error) {
	pr, _, err := h.client.PullRequests.Get(ctx, h.owner, h.repo, number)
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to get pull request #%d: %w", number, err))
	}
	if !pr.GetMerged() {
		return nil, fmt.Errorf("pull request #%d is not merged, nothing to revert", number)
	}

	mergeSHA := pr.GetMergeCommitSHA()
	commit, _, err := h.client.Git.GetCommit(ctx, h.owner, h.repo, mergeSHA)
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to get merge commit %s: %w", mergeSHA, err))
	}
	if len(commit.Parents) == 0 {
		return nil, fmt.Errorf("merge commit %s has no parent", mergeSHA)
	}
	parentSHA := commit.Parents[0].GetSHA()

	branch := fmt.Sprintf("revert-%d-%s", number, shortSHA(parentSHA))
	_, _, err = h.client.Git.CreateRef(ctx, h.owner, h.repo, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: gh.Ptr(parentSHA)},
	})
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to create revert branch %s: %w", branch, err))
	}

	return h.OpenChangeRequest(ctx,
		fmt.Sprintf("Revert #%d: %s", number, pr.GetTitle()),
		fmt.Sprintf("Restores the base branch to the state before #%d was merged.", number),
		branch, pr.GetBase().GetRef())
}

func (h *Host) CreateRepository(ctx context.Context, name, description string, private bool) (*models.Repository, error) {
	repo, _, err := h.client.Repositories.Create(ctx, "", &gh.Repository{
		Name:        gh.Ptr(name),
		Description: gh.Ptr(description),
		Private:     gh.Ptr(private),
		AutoInit:    gh.Ptr(true),
	})
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to create repository %s: %w", name, err))
	}

	return &models.Repository{
		FullName:      repo.GetFullName(),
		URL:           repo.GetHTMLURL(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
	}, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
