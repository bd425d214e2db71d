package models

import (
	"strings"
	"time"
)

// Changeset models

// ChangesetAction describes what a proposed file operation does to the
// repository.
type ChangesetAction string

const (
	ActionNew      ChangesetAction = "NEW"
	ActionModified ChangesetAction = "MODIFIED"
	ActionDeleted  ChangesetAction = "DELETED"
)

// ChangesetFile is a single file-level operation proposed by the assistant.
// Content is empty for deletions. OriginTier records which parser strategy
// produced the entry, for diagnostics only.
type ChangesetFile struct {
	Path       string          `json:"path"`
	Action     ChangesetAction `json:"action"`
	Content    string          `json:"content"`
	OriginTier int             `json:"origin_tier,omitempty"`
}

// LineCount returns the number of lines in the file content. The changeset
// preview uses it for the +N / ~N / -N annotations.
func (f ChangesetFile) LineCount() int {
	if f.Content == "" {
		return 0
	}
	return strings.Count(f.Content, "\n") + 1
}

// Conversation models

// Message is one entry in a conversation log. Role is "user" or
// "assistant". The log is append-only.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Repository models

// RepoEntry is a read-only snapshot of one file in the repository tree,
// fetched from the host once per conversation.
type RepoEntry struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Extension returns the lowercase file extension including the dot, or ""
// when the path has none.
func (e RepoEntry) Extension() string {
	base := e.Path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return strings.ToLower(base[i:])
	}
	return ""
}

// Repository describes a repository created or addressed on the host.
type Repository struct {
	FullName      string `json:"full_name"`
	URL           string `json:"url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// Change request models

// ChangeRequest references a PR/MR opened on the host.
type ChangeRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Title  string `json:"title"`
}

// MergeResult is the outcome of merging a change request.
type MergeResult struct {
	Number  int    `json:"number"`
	Merged  bool   `json:"merged"`
	SHA     string `json:"sha,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmitResult is the recorded outcome of a successful submission, kept on
// the conversation so a repeated submit trigger can short-circuit instead
// of opening a second change request.
type SubmitResult struct {
	ChangeRequest ChangeRequest `json:"change_request"`
	FilesWritten  []string      `json:"files_written"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}
