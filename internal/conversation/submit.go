package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/changesmith/pkg/models"
)

// maxBranchProbes bounds the collision-suffix search for derived branch
// names.
const maxBranchProbes = 5

// PartialSubmissionError reports a submission that wrote some files before
// a later write failed. Already-written files are NOT rolled back; the
// error distinguishes them path by path so nothing is silently reported as
// full success.
type PartialSubmissionError struct {
	Branch     string
	Written    []string
	FailedPath string
	Remaining  []string
	Err        error
}

func (e *PartialSubmissionError) Error() string {
	return fmt.Sprintf("submission partially applied on %s: %d file(s) written (%s), failed at %s: %v, %d not attempted",
		e.Branch, len(e.Written), strings.Join(e.Written, ", "), e.FailedPath, e.Err, len(e.Remaining))
}

func (e *PartialSubmissionError) Unwrap() error {
	return e.Err
}

// Submit replays the most recently cached changeset against the host. It
// never re-invokes the generator: a retry after SUBMIT_FAILED reuses
// CachedFiles byte for byte with zero completion calls. A submit on an
// already-SUBMITTED conversation short-circuits to the recorded result.
func (e *Engine) Submit(ctx context.Context, threadID string) (*Reply, error) {
	var snapshot Conversation
	err := e.mutate(ctx, threadID, func(conv *Conversation) error {
		switch conv.Status {
		case StatusSubmitted:
			snapshot = *conv
			return nil
		case StatusAwaitingUser, StatusSubmitFailed, StatusCreated:
			if len(conv.CachedFiles) == 0 {
				return fmt.Errorf("nothing to submit: no changeset has been proposed yet")
			}
			conv.Status = StatusSubmitting
			snapshot = *conv
			return nil
		default:
			return fmt.Errorf("conversation is %s, cannot submit now", conv.Status)
		}
	})
	if err != nil {
		return nil, err
	}

	if snapshot.Status == StatusSubmitted {
		return resultReply(&snapshot), nil
	}

	// The host calls run outside the key lock; state is re-validated by
	// mutate when they finish.
	result, submitErr := e.performSubmit(ctx, &snapshot)

	if submitErr != nil {
		if err := e.mutate(ctx, threadID, func(conv *Conversation) error {
			conv.Status = StatusSubmitFailed
			conv.LastError = submitErr.Error()
			return nil
		}); err != nil {
			return nil, err
		}
		return nil, submitErr
	}

	err = e.mutate(ctx, threadID, func(conv *Conversation) error {
		conv.Status = StatusSubmitted
		conv.LastError = ""
		conv.Result = result
		return nil
	})
	if err != nil {
		// The change request exists but the conversation is gone; report
		// the result anyway.
		log.Warn().Err(err).Str("thread", threadID).Msg("conversation vanished during submission")
	}

	if e.tracker != nil {
		if err := e.tracker.LogCreation(result.ChangeRequest.Number, e.repo, threadID); err != nil {
			log.Warn().Err(err).Msg("failed to record change request creation")
		}
	}

	return &Reply{
		ThreadID:      threadID,
		Text:          fmt.Sprintf("🚀 Change request created: %s", result.ChangeRequest.URL),
		Submitted:     true,
		ChangeRequest: &result.ChangeRequest,
	}, nil
}

// submitDeletion handles the deletion-intent shortcut: an unambiguous
// deletion request skips PROPOSING entirely, so no completion call is
// spent on it.
func (e *Engine) submitDeletion(ctx context.Context, threadID, participant, task string, paths []string) (*Reply, error) {
	files := make([]models.ChangesetFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, models.ChangesetFile{Path: p, Action: models.ActionDeleted})
	}

	conv := &Conversation{
		ID:          threadID,
		Participant: participant,
		InitialTask: task,
		Messages:    []models.Message{{Role: "user", Content: task}},
		CachedFiles: files,
		Status:      StatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.save(ctx, conv); err != nil {
		return nil, err
	}

	log.Info().Str("thread", threadID).Int("files", len(files)).Msg("deletion shortcut, skipping proposal cycle")
	return e.Submit(ctx, threadID)
}

// performSubmit applies the cached changeset: derive a branch, write every
// file, open the change request. No rollback on partial failure.
func (e *Engine) performSubmit(ctx context.Context, conv *Conversation) (*models.SubmitResult, error) {
	base, err := e.host.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}

	branch, err := e.resolveBranchName(ctx, conv.InitialTask, conv.ID)
	if err != nil {
		return nil, err
	}

	if err := e.host.CreateBranch(ctx, base, branch); err != nil {
		return nil, err
	}

	var written []string
	for i, f := range conv.CachedFiles {
		message := commitMessage(f)
		var applyErr error
		switch f.Action {
		case models.ActionDeleted:
			applyErr = e.host.DeleteFile(ctx, f.Path, branch, message)
		default:
			applyErr = e.host.CreateOrUpdateFile(ctx, f.Path, f.Content, branch, message)
		}
		if applyErr != nil {
			remaining := make([]string, 0, len(conv.CachedFiles)-i-1)
			for _, rest := range conv.CachedFiles[i+1:] {
				remaining = append(remaining, rest.Path)
			}
			return nil, &PartialSubmissionError{
				Branch:     branch,
				Written:    written,
				FailedPath: f.Path,
				Remaining:  remaining,
				Err:        applyErr,
			}
		}
		written = append(written, f.Path)
	}

	title := changeRequestTitle(conv.InitialTask)
	cr, err := e.host.OpenChangeRequest(ctx, title, changeRequestBody(conv), branch, base)
	if err != nil {
		return nil, &PartialSubmissionError{
			Branch:     branch,
			Written:    written,
			FailedPath: "",
			Err:        fmt.Errorf("all files written but opening the change request failed: %w", err),
		}
	}

	return &models.SubmitResult{
		ChangeRequest: *cr,
		FilesWritten:  written,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// resolveBranchName derives a deterministic branch name from the task and
// conversation id, probing numeric suffixes on collision up to
// maxBranchProbes.
func (e *Engine) resolveBranchName(ctx context.Context, task, convID string) (string, error) {
	base := DeriveBranchName(task, convID)

	for probe := 0; probe < maxBranchProbes; probe++ {
		candidate := base
		if probe > 0 {
			candidate = fmt.Sprintf("%s-%d", base, probe+1)
		}
		exists, err := e.host.BranchExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("branch name %s is taken and %d suffix probes collided too", base, maxBranchProbes-1)
}

// DeriveBranchName builds the slug-plus-hash branch name: a task slug
// capped at 40 characters, then a 6-hex-digit hash of (task, conversation
// id) for uniqueness across threads with identical tasks.
func DeriveBranchName(task, convID string) string {
	slug := slugify(task)
	if slug == "" {
		slug = "changeset"
	}

	sum := sha256.Sum256([]byte(task + "|" + convID))
	return slug + "-" + hex.EncodeToString(sum[:3])
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	return slug
}

func commitMessage(f models.ChangesetFile) string {
	switch f.Action {
	case models.ActionDeleted:
		return "Delete " + f.Path
	case models.ActionModified:
		return "Update " + f.Path
	default:
		return "Add " + f.Path
	}
}

func changeRequestTitle(task string) string {
	title := strings.TrimSpace(task)
	if len(title) > 60 {
		title = title[:57] + "..."
	}
	return title
}

func changeRequestBody(conv *Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nFiles in this changeset:\n", conv.InitialTask)
	for _, f := range conv.CachedFiles {
		fmt.Fprintf(&b, "- %s [%s]\n", f.Path, f.Action)
	}
	if conv.Truncated {
		b.WriteString("\n⚠️ The generating response was length-limited; review the last file carefully.\n")
	}
	b.WriteString("\nProposed via changesmith.\n")
	return b.String()
}
