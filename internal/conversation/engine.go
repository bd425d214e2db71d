package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/changesmith/internal/changeset"
	"github.com/changesmith/internal/codecontext"
	"github.com/changesmith/internal/intent"
	"github.com/changesmith/internal/llm"
	"github.com/changesmith/internal/providers"
	"github.com/changesmith/internal/stats"
	"github.com/changesmith/pkg/models"
)

// Engine owns per-thread conversation state and drives the
// propose → refine → submit workflow. All state transitions for one key are
// serialized; the slow collaborator calls (completion, host writes) run
// outside the critical section and state is re-validated when they return.
type Engine struct {
	store      Store
	host       providers.Host
	generator  *changeset.Generator
	selector   *codecontext.Selector
	classifier *intent.Classifier
	tracker    *stats.Tracker // optional
	repo       string

	// asyncSubmit, when set, takes over submit triggers: the work is
	// enqueued and performed by a background worker calling Submit.
	asyncSubmit func(context.Context, string) error

	locks *keyedLocks
}

// NewEngine wires the engine. tracker may be nil; activity recording is
// then skipped.
func NewEngine(store Store, host providers.Host, generator *changeset.Generator,
	selector *codecontext.Selector, classifier *intent.Classifier,
	tracker *stats.Tracker, repo string) *Engine {
	return &Engine{
		store:      store,
		host:       host,
		generator:  generator,
		selector:   selector,
		classifier: classifier,
		tracker:    tracker,
		repo:       repo,
		locks:      newKeyedLocks(),
	}
}

// SetAsyncSubmitter routes submit triggers through enqueue instead of an
// inline host round-trip. The enqueued job calls Submit, whose idempotency
// makes duplicate deliveries safe.
func (e *Engine) SetAsyncSubmitter(enqueue func(context.Context, string) error) {
	e.asyncSubmit = enqueue
}

// Threads lists all stored conversations.
func (e *Engine) Threads(ctx context.Context) ([]*Conversation, error) {
	return e.store.List(ctx)
}

// Thread returns one conversation.
func (e *Engine) Thread(ctx context.Context, id string) (*Conversation, error) {
	return e.store.Get(ctx, id)
}

// DeleteThread removes a conversation. An in-flight cycle for the same key
// notices the deletion when it re-validates state.
func (e *Engine) DeleteThread(ctx context.Context, id string) error {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()
	return e.store.Delete(ctx, id)
}

// HandleMessage is the entry point for an inbound chat message. threadID is
// the conversation key; two concurrent messages for the same key are
// serialized around state access.
func (e *Engine) HandleMessage(ctx context.Context, threadID, participant, text string, image *llm.Image) (*Reply, error) {
	conv, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if conv != nil {
		switch conv.Status {
		case StatusAwaitingUser, StatusSubmitFailed:
			if e.classifier.IsSubmit(ctx, text) {
				if e.asyncSubmit != nil {
					if err := e.asyncSubmit(ctx, threadID); err == nil {
						return &Reply{ThreadID: threadID, Text: "🚚 Submission queued, I'll open the change request shortly."}, nil
					}
					log.Warn().Str("thread", threadID).Msg("enqueue failed, submitting inline")
				}
				return e.Submit(ctx, threadID)
			}
			return e.refine(ctx, threadID, text, image)

		case StatusSubmitted:
			if e.classifier.IsSubmit(ctx, text) {
				// Idempotent: the recorded result is returned, no new
				// change request is created.
				return resultReply(conv), nil
			}
			// Terminal conversation; a new task in the same thread starts
			// fresh.
			if err := e.DeleteThread(ctx, threadID); err != nil {
				return nil, err
			}

		case StatusProposing, StatusSubmitting:
			return &Reply{
				ThreadID: threadID,
				Text:     "⏳ Still working on the previous request for this thread, give it a moment.",
			}, nil
		}
	}

	cmd := e.classifier.ClassifyCommand(ctx, text)
	log.Info().Str("thread", threadID).Str("command", string(cmd.Kind)).Msg("message classified")

	switch cmd.Kind {
	case intent.KindMergePR:
		return e.merge(ctx, threadID, cmd.Number, cmd.MergeMethod)
	case intent.KindRevertPR:
		return e.revert(ctx, threadID, cmd.Number)
	case intent.KindCreateRepo:
		return e.createRepo(ctx, threadID, cmd)
	case intent.KindViewUsage:
		return e.usage(threadID)
	case intent.KindGeneral:
		return e.answer(ctx, threadID, text, image)
	default: // CREATE_PR, REFINE: a coding task
		task := cmd.Task
		if task == "" {
			task = text
		}
		if paths := intent.DeletionPaths(task); len(paths) > 0 {
			return e.submitDeletion(ctx, threadID, participant, task, paths)
		}
		return e.start(ctx, threadID, participant, task, image)
	}
}

// start creates a conversation for a first task message and runs the first
// proposal cycle.
func (e *Engine) start(ctx context.Context, threadID, participant, task string, image *llm.Image) (*Reply, error) {
	conv := &Conversation{
		ID:          threadID,
		Participant: participant,
		InitialTask: task,
		Messages:    []models.Message{{Role: "user", Content: task}},
		Status:      StatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.save(ctx, conv); err != nil {
		return nil, err
	}

	if err := e.ensureContext(ctx, threadID); err != nil {
		// A failed context fetch degrades to an ungrounded proposal; the
		// task itself may not need repository context at all.
		log.Warn().Err(err).Str("thread", threadID).Msg("context selection failed, proposing without grounding")
	}

	return e.propose(ctx, threadID, image)
}

// refine appends the user's message and regenerates, reusing the memoized
// context.
func (e *Engine) refine(ctx context.Context, threadID, text string, image *llm.Image) (*Reply, error) {
	err := e.mutate(ctx, threadID, func(conv *Conversation) error {
		conv.Messages = append(conv.Messages, models.Message{Role: "user", Content: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.propose(ctx, threadID, image)
}

// ensureContext runs the context selection at most once per conversation
// lifetime. The fetch itself happens outside the per-key lock.
func (e *Engine) ensureContext(ctx context.Context, threadID string) error {
	conv, err := e.load(ctx, threadID)
	if err != nil || conv == nil || conv.ContextReady {
		return err
	}
	task := conv.InitialTask

	ref, err := e.host.DefaultBranch(ctx)
	if err != nil {
		return err
	}
	selected, _, err := e.selector.Select(ctx, task, ref)
	if err != nil {
		return err
	}

	return e.mutate(ctx, threadID, func(conv *Conversation) error {
		conv.Context = changeset.FormatContext(selected)
		conv.ContextReady = true
		return nil
	})
}

// propose runs one PROPOSING cycle: exactly one completion call, one parse.
func (e *Engine) propose(ctx context.Context, threadID string, image *llm.Image) (*Reply, error) {
	var req changeset.Request
	err := e.mutate(ctx, threadID, func(conv *Conversation) error {
		conv.Status = StatusProposing
		req = changeset.Request{
			Task:     conv.InitialTask,
			Messages: conv.Messages,
			Context:  conv.Context,
			Image:    image,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	proposal, propErr := e.generator.Propose(ctx, req)

	reply := &Reply{ThreadID: threadID}
	err = e.mutate(ctx, threadID, func(conv *Conversation) error {
		if propErr != nil {
			conv.Status = StatusAwaitingUser
			conv.LastError = propErr.Error()
			return nil
		}
		conv.Messages = append(conv.Messages, models.Message{Role: "assistant", Content: proposal.RawResponse})
		if len(proposal.Files) > 0 {
			conv.CachedFiles = proposal.Files
			conv.Truncated = proposal.Truncated
		}
		conv.Status = StatusAwaitingUser
		conv.LastError = ""

		reply.Text = proposal.Preview
		reply.Files = proposal.Files
		reply.Truncated = proposal.Truncated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if propErr != nil {
		return nil, propErr
	}
	return reply, nil
}

// answer handles GENERAL messages: a plain completion answer with no parse
// and no changeset. With an existing conversation the exchange is appended
// to its log; without one nothing is persisted.
func (e *Engine) answer(ctx context.Context, threadID, text string, image *llm.Image) (*Reply, error) {
	conv, err := e.load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	req := changeset.Request{Task: text, Image: image}
	if conv != nil {
		req.Messages = conv.Messages
		req.Context = conv.Context
	}

	answer, err := e.generator.Answer(ctx, req)
	if err != nil {
		return nil, err
	}

	if conv != nil {
		_ = e.mutate(ctx, threadID, func(conv *Conversation) error {
			conv.Messages = append(conv.Messages,
				models.Message{Role: "user", Content: text},
				models.Message{Role: "assistant", Content: answer})
			return nil
		})
	}

	return &Reply{ThreadID: threadID, Text: answer}, nil
}

func (e *Engine) merge(ctx context.Context, threadID string, number int, method string) (*Reply, error) {
	result, err := e.host.MergeChangeRequest(ctx, number, method)
	if err != nil {
		return nil, err
	}
	if e.tracker != nil && result.Merged {
		if err := e.tracker.MarkMerged(number); err != nil {
			log.Warn().Err(err).Int("number", number).Msg("failed to record merge")
		}
	}

	text := fmt.Sprintf("✅ Merged change request #%d (%s).", number, method)
	if !result.Merged {
		text = fmt.Sprintf("⚠️ The host did not merge #%d: %s", number, result.Message)
	}
	return &Reply{ThreadID: threadID, Text: text}, nil
}

func (e *Engine) revert(ctx context.Context, threadID string, number int) (*Reply, error) {
	cr, err := e.host.CreateRevert(ctx, number)
	if err != nil {
		return nil, err
	}
	if e.tracker != nil {
		if err := e.tracker.MarkReverted(number); err != nil {
			log.Warn().Err(err).Int("number", number).Msg("failed to record revert")
		}
	}

	return &Reply{
		ThreadID:      threadID,
		Text:          fmt.Sprintf("↩️ Opened revert change request #%d for #%d: %s", cr.Number, number, cr.URL),
		ChangeRequest: cr,
	}, nil
}

func (e *Engine) createRepo(ctx context.Context, threadID string, cmd intent.Command) (*Reply, error) {
	repo, err := e.host.CreateRepository(ctx, cmd.RepoName, cmd.RepoDescription, cmd.Private)
	if err != nil {
		return nil, err
	}

	visibility := "public"
	if repo.Private {
		visibility = "private"
	}
	return &Reply{
		ThreadID: threadID,
		Text:     fmt.Sprintf("🆕 Created %s repository %s: %s", visibility, repo.FullName, repo.URL),
	}, nil
}

func (e *Engine) usage(threadID string) (*Reply, error) {
	if e.tracker == nil {
		return &Reply{ThreadID: threadID, Text: "Activity tracking is not configured."}, nil
	}

	records, err := e.tracker.Activity()
	if err != nil {
		return nil, err
	}

	merged, reverted := 0, 0
	for _, r := range records {
		if r.Merged {
			merged++
		}
		if r.Reverted {
			reverted++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Activity: %d change request(s) created, %d merged, %d reverted.\n", len(records), merged, reverted)
	for i := len(records) - 1; i >= 0 && i >= len(records)-10; i-- {
		r := records[i]
		state := "open"
		if r.Reverted {
			state = "reverted"
		} else if r.Merged {
			state = "merged"
		}
		fmt.Fprintf(&b, "• #%d %s (%s) %s\n", r.Number, r.Repo, state, r.CreatedAt.Format("2006-01-02"))
	}
	return &Reply{ThreadID: threadID, Text: b.String()}, nil
}

// load returns the conversation for a key, or nil when none exists.
func (e *Engine) load(ctx context.Context, threadID string) (*Conversation, error) {
	lock := e.locks.get(threadID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.store.Get(ctx, threadID)
	if err == ErrNotFound {
		return nil, nil
	}
	return conv, err
}

// save writes a conversation under its key lock.
func (e *Engine) save(ctx context.Context, conv *Conversation) error {
	lock := e.locks.get(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	conv.UpdatedAt = time.Now().UTC()
	return e.store.Put(ctx, conv)
}

// mutate applies fn to the stored conversation under the key lock and
// persists the result. It fails with ErrNotFound when the conversation was
// deleted in the meantime, which is how stale cycles are rejected.
func (e *Engine) mutate(ctx context.Context, threadID string, fn func(*Conversation) error) error {
	lock := e.locks.get(threadID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.store.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if err := fn(conv); err != nil {
		return err
	}
	conv.UpdatedAt = time.Now().UTC()
	return e.store.Put(ctx, conv)
}

func resultReply(conv *Conversation) *Reply {
	reply := &Reply{
		ThreadID:  conv.ID,
		Submitted: true,
	}
	if conv.Result != nil {
		reply.ChangeRequest = &conv.Result.ChangeRequest
		reply.Text = fmt.Sprintf("✅ Already submitted: %s", conv.Result.ChangeRequest.URL)
	}
	return reply
}
