package gitlab

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/changesmith/internal/llm"
	"github.com/changesmith/pkg/models"
)

// hostErr marks a GitLab API failure as an upstream fault so transports can
// report it as a bad gateway rather than an internal error.
func hostErr(err error) error {
	return &llm.ExternalServiceError{Service: "gitlab", Err: err}
}

// Config holds everything the GitLab host needs.
type Config struct {
	Project string // group/project path or numeric id
	Token   string
	BaseURL string // self-hosted installations only
}

// Host implements the source-control collaborator against GitLab.
type Host struct {
	client  *gl.Client
	project string
}

// New creates a GitLab host for the configured project.
func New(config Config) (*Host, error) {
	opts := []gl.ClientOptionFunc{}
	if config.BaseURL != "" {
		opts = append(opts, gl.WithBaseURL(config.BaseURL+"/api/v4"))
	}

	client, err := gl.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &Host{client: client, project: config.Project}, nil
}

func (h *Host) DefaultBranch(ctx context.Context) (string, error) {
	project, _, err := h.client.Projects.GetProject(h.project, nil, gl.WithContext(ctx))
	if err != nil {
		return "", hostErr(fmt.Errorf("failed to get project: %w", err))
	}
	return project.DefaultBranch, nil
}

// ListTree walks the repository tree page by page. GitLab's tree API does
// not report blob sizes, so SizeBytes stays zero and the selector's size
// heuristics are inert for GitLab repositories.
func (h *Host) ListTree(ctx context.Context, ref string) ([]models.RepoEntry, error) {
	var entries []models.RepoEntry

	opt := &gl.ListTreeOptions{
		Ref:         gl.Ptr(ref),
		Recursive:   gl.Ptr(true),
		ListOptions: gl.ListOptions{PerPage: 100},
	}
	for {
		nodes, resp, err := h.client.Repositories.ListTree(h.project, opt, gl.WithContext(ctx))
		if err != nil {
			return nil, hostErr(fmt.Errorf("failed to list tree at %s: %w", ref, err))
		}
		for _, n := range nodes {
			if n.Type != "blob" {
				continue
			}
			entries = append(entries, models.RepoEntry{Path: n.Path})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	log.Debug().Int("entries", len(entries)).Str("ref", ref).Msg("listed GitLab tree")
	return entries, nil
}

func (h *Host) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	raw, _, err := h.client.RepositoryFiles.GetRawFile(h.project, path,
		&gl.GetRawFileOptions{Ref: gl.Ptr(ref)}, gl.WithContext(ctx))
	if err != nil {
		return "", hostErr(fmt.Errorf("failed to fetch %s@%s: %w", path, ref, err))
	}
	return string(raw), nil
}

func (h *Host) BranchExists(ctx context.Context, name string) (bool, error) {
	_, resp, err := h.client.Branches.GetBranch(h.project, name, gl.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, hostErr(fmt.Errorf("failed to check branch %s: %w", name, err))
	}
	return true, nil
}

func (h *Host) CreateBranch(ctx context.Context, base, name string) error {
	_, _, err := h.client.Branches.CreateBranch(h.project, &gl.CreateBranchOptions{
		Branch: gl.Ptr(name),
		Ref:    gl.Ptr(base),
	}, gl.WithContext(ctx))
	if err != nil {
		return hostErr(fmt.Errorf("failed to create branch %s: %w", name, err))
	}
	return nil
}

func (h *Host) CreateOrUpdateFile(ctx context.Context, path, content, branch, message string) error {
	_, resp, err := h.client.RepositoryFiles.GetFileMetaData(h.project, path,
		&gl.GetFileMetaDataOptions{Ref: gl.Ptr(branch)}, gl.WithContext(ctx))

	switch {
	case err == nil:
		_, _, err = h.client.RepositoryFiles.UpdateFile(h.project, path, &gl.UpdateFileOptions{
			Branch:        gl.Ptr(branch),
			Content:       gl.Ptr(content),
			CommitMessage: gl.Ptr(message),
		}, gl.WithContext(ctx))
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		_, _, err = h.client.RepositoryFiles.CreateFile(h.project, path, &gl.CreateFileOptions{
			Branch:        gl.Ptr(branch),
			Content:       gl.Ptr(content),
			CommitMessage: gl.Ptr(message),
		}, gl.WithContext(ctx))
	default:
		return hostErr(fmt.Errorf("failed to stat %s on %s: %w", path, branch, err))
	}
	if err != nil {
		return hostErr(fmt.Errorf("failed to write %s on %s: %w", path, branch, err))
	}
	return nil
}

func (h *Host) DeleteFile(ctx context.Context, path, branch, message string) error {
	_, err := h.client.RepositoryFiles.DeleteFile(h.project, path, &gl.DeleteFileOptions{
		Branch:        gl.Ptr(branch),
		CommitMessage: gl.Ptr(message),
	}, gl.WithContext(ctx))
	if err != nil {
		return hostErr(fmt.Errorf("failed to delete %s on %s: %w", path, branch, err))
	}
	return nil
}

func (h *Host) OpenChangeRequest(ctx context.Context, title, body, head, base string) (*models.ChangeRequest, error) {
	mr, _, err := h.client.MergeRequests.CreateMergeRequest(h.project, &gl.CreateMergeRequestOptions{
		Title:        gl.Ptr(title),
		Description:  gl.Ptr(body),
		SourceBranch: gl.Ptr(head),
		TargetBranch: gl.Ptr(base),
	}, gl.WithContext(ctx))
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to open merge request: %w", err))
	}

	return &models.ChangeRequest{
		Number: mr.IID,
		URL:    mr.WebURL,
		Branch: head,
		Title:  title,
	}, nil
}

func (h *Host) MergeChangeRequest(ctx context.Context, number int, method string) (*models.MergeResult, error) {
	opts := &gl.AcceptMergeRequestOptions{}
	switch method {
	case "", "merge":
	case "squash":
		opts.Squash = gl.Ptr(true)
	default:
		// GitLab rebases asynchronously via a separate endpoint, so rebase
		// merges cannot be honored in a single accept call.
		return nil, fmt.Errorf("merge method %q is not supported on gitlab, use merge or squash", method)
	}

	mr, _, err := h.client.MergeRequests.AcceptMergeRequest(h.project, number, opts, gl.WithContext(ctx))
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to merge merge request !%d: %w", number, err))
	}

	sha := mr.MergeCommitSHA
	if sha == "" {
		sha = mr.SquashCommitSHA
	}
	return &models.MergeResult{
		Number:  number,
		Merged:  mr.State == "merged",
		SHA:     sha,
		Message: mr.Title,
	}, nil
}

// CreateRevert reverts the merge commit of a merged merge request onto a
// fresh branch via the Commits API and proposes that branch back into the
// original target.
func (h *Host) CreateRevert(ctx context.Context, number int) (*models.ChangeRequest, error) {
	mr, _, err := h.client.MergeRequests.GetMergeRequest(h.project, number, nil, gl.WithContext(ctx))
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to get merge request !%d: %w", number, err))
	}
	if mr.MergeCommitSHA == "" {
		return nil, fmt.Errorf("merge request !%d is not merged, nothing to revert", number)
	}

	branch := fmt.Sprintf("revert-%d-%s", number, shortSHA(mr.MergeCommitSHA))
	if err := h.CreateBranch(ctx, mr.TargetBranch, branch); err != nil {
		return nil, err
	}

	_, _, err = h.client.Commits.RevertCommit(h.project, mr.MergeCommitSHA, &gl.RevertCommitOptions{
		Branch: gl.Ptr(branch),
	}, gl.WithContext(ctx))
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to revert commit %s: %w", mr.MergeCommitSHA, err))
	}

	return h.OpenChangeRequest(ctx,
		fmt.Sprintf("Revert !%d: %s", number, mr.Title),
		fmt.Sprintf("Reverts the merge commit of !%d.", number),
		branch, mr.TargetBranch)
}

func (h *Host) CreateRepository(ctx context.Context, name, description string, private bool) (*models.Repository, error) {
	visibility := gl.PublicVisibility
	if private {
		visibility = gl.PrivateVisibility
	}

	project, _, err := h.client.Projects.CreateProject(&gl.CreateProjectOptions{
		Name:                 gl.Ptr(name),
		Description:          gl.Ptr(description),
		Visibility:           gl.Ptr(visibility),
		InitializeWithReadme: gl.Ptr(true),
	}, gl.WithContext(ctx))
	if err != nil {
		return nil, hostErr(fmt.Errorf("failed to create project %s: %w", name, err))
	}

	return &models.Repository{
		FullName:      project.PathWithNamespace,
		URL:           project.WebURL,
		DefaultBranch: project.DefaultBranch,
		Private:       project.Visibility == gl.PrivateVisibility,
	}, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
