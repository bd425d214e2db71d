package conversation

import (
	"time"

	"github.com/changesmith/pkg/models"
)

// Status is the conversation state-machine state.
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusProposing    Status = "PROPOSING"
	StatusAwaitingUser Status = "AWAITING_USER"
	StatusSubmitting   Status = "SUBMITTING"
	StatusSubmitted    Status = "SUBMITTED" // terminal
	StatusSubmitFailed Status = "SUBMIT_FAILED"
)

// Conversation is the per-thread state the engine owns. It is created on
// the first task message for a thread and kept across process restarts by
// the store. Messages is append-only; CachedFiles is replaced wholesale on
// every proposal cycle.
type Conversation struct {
	ID          string           `json:"id"` // thread key
	Participant string           `json:"participant"`
	InitialTask string           `json:"initial_task"`
	Messages    []models.Message `json:"messages"`

	// Context is the memoized grounding context. It is fetched at most
	// once per conversation lifetime; ContextReady distinguishes "empty
	// repository" from "not fetched yet".
	Context      string `json:"context,omitempty"`
	ContextReady bool   `json:"context_ready"`

	CachedFiles []models.ChangesetFile `json:"cached_files,omitempty"`
	Truncated   bool                   `json:"truncated"`

	Status    Status               `json:"status"`
	LastError string               `json:"last_error,omitempty"`
	Result    *models.SubmitResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy. Stores hand out clones so a conversation read
// by one goroutine is never aliased by the copy the engine mutates.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Messages != nil {
		clone.Messages = append([]models.Message(nil), c.Messages...)
	}
	if c.CachedFiles != nil {
		clone.CachedFiles = append([]models.ChangesetFile(nil), c.CachedFiles...)
	}
	if c.Result != nil {
		result := *c.Result
		if c.Result.FilesWritten != nil {
			result.FilesWritten = append([]string(nil), c.Result.FilesWritten...)
		}
		clone.Result = &result
	}
	return &clone
}

// Reply is what a handled message produces for the chat transport.
type Reply struct {
	ThreadID      string                 `json:"thread_id"`
	Text          string                 `json:"text"`
	Files         []models.ChangesetFile `json:"files,omitempty"`
	Truncated     bool                   `json:"truncated"`
	Submitted     bool                   `json:"submitted"`
	ChangeRequest *models.ChangeRequest  `json:"change_request,omitempty"`
}
