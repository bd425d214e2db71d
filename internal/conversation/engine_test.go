package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changesmith/internal/changeset"
	"github.com/changesmith/internal/codecontext"
	"github.com/changesmith/internal/intent"
	"github.com/changesmith/internal/llm"
	"github.com/changesmith/internal/parser"
	"github.com/changesmith/internal/stats"
	"github.com/changesmith/pkg/models"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*Conversation)}
}

func (s *memStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *memStore) Put(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = conv.Clone()
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return ErrNotFound
	}
	delete(s.convs, id)
	return nil
}

func (s *memStore) List(ctx context.Context) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Conversation
	for _, conv := range s.convs {
		out = append(out, conv.Clone())
	}
	return out, nil
}

// fakeHost scripts host behavior and records calls.
type fakeHost struct {
	mu sync.Mutex

	branches      map[string]bool
	listTreeCalls int
	writes        []string
	deletes       []string
	openedCRs     int
	mergedNumbers []int
	reverted      []int

	failWritePath string // CreateOrUpdateFile for this path fails once
	failOpenCR    bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{branches: map[string]bool{"main": true}}
}

func (h *fakeHost) DefaultBranch(ctx context.Context) (string, error) { return "main", nil }

func (h *fakeHost) ListTree(ctx context.Context, ref string) ([]models.RepoEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listTreeCalls++
	return []models.RepoEntry{
		{Path: "main.go", SizeBytes: 120},
		{Path: "internal/auth/login.go", SizeBytes: 300},
	}, nil
}

func (h *fakeHost) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	return "package stub // " + path, nil
}

func (h *fakeHost) BranchExists(ctx context.Context, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.branches[name], nil
}

func (h *fakeHost) CreateBranch(ctx context.Context, base, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[name] = true
	return nil
}

func (h *fakeHost) CreateOrUpdateFile(ctx context.Context, path, content, branch, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if path == h.failWritePath {
		h.failWritePath = ""
		return errors.New("host write rejected")
	}
	h.writes = append(h.writes, path)
	return nil
}

func (h *fakeHost) DeleteFile(ctx context.Context, path, branch, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deletes = append(h.deletes, path)
	return nil
}

func (h *fakeHost) OpenChangeRequest(ctx context.Context, title, body, head, base string) (*models.ChangeRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failOpenCR {
		h.failOpenCR = false
		return nil, errors.New("host refused change request")
	}
	h.openedCRs++
	return &models.ChangeRequest{
		Number: 100 + h.openedCRs,
		URL:    fmt.Sprintf("https://example.test/pr/%d", 100+h.openedCRs),
		Branch: head,
		Title:  title,
	}, nil
}

func (h *fakeHost) MergeChangeRequest(ctx context.Context, number int, method string) (*models.MergeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mergedNumbers = append(h.mergedNumbers, number)
	return &models.MergeResult{Number: number, Merged: true, SHA: "abc123"}, nil
}

func (h *fakeHost) CreateRevert(ctx context.Context, number int) (*models.ChangeRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reverted = append(h.reverted, number)
	return &models.ChangeRequest{Number: 900, URL: "https://example.test/pr/900"}, nil
}

func (h *fakeHost) CreateRepository(ctx context.Context, name, description string, private bool) (*models.Repository, error) {
	return &models.Repository{FullName: "acme/" + name, URL: "https://example.test/" + name, Private: private}, nil
}

// scriptedLLM returns canned completion texts in order and counts calls.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (m *scriptedLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.responses) {
		return llm.Response{}, errors.New("no scripted response left")
	}
	text := m.responses[m.calls]
	m.calls++
	return llm.Response{Text: text}, nil
}

func (m *scriptedLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

const proposalOne = "📄 File: internal/auth/login.go [MODIFIED]\n```go\npackage auth // v1\n```\n"
const proposalTwo = "📄 File: internal/auth/login.go [MODIFIED]\n```go\npackage auth // v2\n```\n" +
	"📄 File: internal/auth/login_test.go [NEW]\n```go\npackage auth // tests\n```\n"

func newTestEngine(t *testing.T, model *scriptedLLM, host *fakeHost) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	generator := changeset.NewGenerator(model, parser.New())
	selector := codecontext.NewSelector(host, nil, codecontext.Options{})
	classifier := intent.NewClassifier(nil, "") // pattern baseline only
	tracker, err := stats.NewTracker(t.TempDir())
	require.NoError(t, err)
	return NewEngine(store, host, generator, selector, classifier, tracker, "acme/app"), store
}

func TestTaskProposesAndAwaitsUser(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne}}
	host := newFakeHost()
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	reply, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)

	assert.Contains(t, reply.Text, "PROPOSED CHANGESET")
	require.Len(t, reply.Files, 1)
	assert.Equal(t, "internal/auth/login.go", reply.Files[0].Path)

	conv, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingUser, conv.Status)
	assert.True(t, conv.ContextReady)
	assert.Len(t, conv.CachedFiles, 1)
	assert.Equal(t, 1, model.callCount(), "one proposal cycle = one completion call")
}

func TestRefineReusesMemoizedContext(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne, proposalTwo}}
	host := newFakeHost()
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)

	reply, err := engine.HandleMessage(ctx, "t1", "alice", "also add a test file", nil)
	require.NoError(t, err)
	require.Len(t, reply.Files, 2)

	assert.Equal(t, 1, host.listTreeCalls, "context is fetched once per conversation lifetime")
	assert.Equal(t, 2, model.callCount())

	conv, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, conv.CachedFiles, 2, "refine replaces the cached changeset wholesale")
	assert.Len(t, conv.Messages, 4)
}

func TestSubmitCreatesChangeRequest(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne}}
	host := newFakeHost()
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)

	reply, err := engine.HandleMessage(ctx, "t1", "alice", "make pr", nil)
	require.NoError(t, err)

	assert.True(t, reply.Submitted)
	require.NotNil(t, reply.ChangeRequest)
	assert.Equal(t, []string{"internal/auth/login.go"}, host.writes)
	assert.Equal(t, 1, host.openedCRs)

	conv, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, conv.Status)
	require.NotNil(t, conv.Result)
	assert.Equal(t, reply.ChangeRequest.Number, conv.Result.ChangeRequest.Number)
}

func TestSubmitIsIdempotent(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne}}
	host := newFakeHost()
	engine, _ := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)
	first, err := engine.HandleMessage(ctx, "t1", "alice", "make pr", nil)
	require.NoError(t, err)

	again, err := engine.HandleMessage(ctx, "t1", "alice", "submit it", nil)
	require.NoError(t, err)

	assert.True(t, again.Submitted)
	require.NotNil(t, again.ChangeRequest)
	assert.Equal(t, first.ChangeRequest.Number, again.ChangeRequest.Number)
	assert.Equal(t, 1, host.openedCRs, "no second change request")
	assert.Equal(t, 1, model.callCount(), "no completion call for the repeat trigger")
}

func TestFailedSubmitIsRetryableWithoutRegeneration(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalTwo}}
	host := newFakeHost()
	host.failWritePath = "internal/auth/login_test.go"
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix login and add tests", nil)
	require.NoError(t, err)

	_, err = engine.HandleMessage(ctx, "t1", "alice", "make pr", nil)
	require.Error(t, err)

	var partial *PartialSubmissionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"internal/auth/login.go"}, partial.Written)
	assert.Equal(t, "internal/auth/login_test.go", partial.FailedPath)

	conv, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitFailed, conv.Status)
	assert.NotEmpty(t, conv.LastError)
	assert.Len(t, conv.CachedFiles, 2, "cached changeset survives the failure")

	callsBefore := model.callCount()
	reply, err := engine.HandleMessage(ctx, "t1", "alice", "submit it", nil)
	require.NoError(t, err)
	assert.True(t, reply.Submitted)
	assert.Equal(t, callsBefore, model.callCount(), "retry replays the cache with zero completion calls")
}

func TestDeletionShortcutSkipsProposal(t *testing.T) {
	model := &scriptedLLM{} // any completion call would error
	host := newFakeHost()
	engine, _ := newTestEngine(t, model, host)
	ctx := context.Background()

	reply, err := engine.HandleMessage(ctx, "t1", "alice", "delete old/legacy.py and old/unused.py", nil)
	require.NoError(t, err)

	assert.True(t, reply.Submitted)
	assert.Equal(t, []string{"old/legacy.py", "old/unused.py"}, host.deletes)
	assert.Empty(t, host.writes)
	assert.Equal(t, 0, model.callCount(), "deletion shortcut spends no completion calls")
}

func TestNewTaskAfterSubmittedStartsFresh(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne, proposalTwo}}
	host := newFakeHost()
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)
	_, err = engine.HandleMessage(ctx, "t1", "alice", "make pr", nil)
	require.NoError(t, err)

	reply, err := engine.HandleMessage(ctx, "t1", "alice", "now add request logging", nil)
	require.NoError(t, err)
	require.Len(t, reply.Files, 2)

	conv, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingUser, conv.Status)
	assert.Equal(t, "now add request logging", conv.InitialTask)
	assert.Nil(t, conv.Result)
}

func TestMergeCommand(t *testing.T) {
	model := &scriptedLLM{}
	host := newFakeHost()
	engine, _ := newTestEngine(t, model, host)

	reply, err := engine.HandleMessage(context.Background(), "t1", "alice", "merge PR 123", nil)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "#123")
	assert.Equal(t, []int{123}, host.mergedNumbers)
}

func TestRevertCommand(t *testing.T) {
	model := &scriptedLLM{}
	host := newFakeHost()
	engine, _ := newTestEngine(t, model, host)

	reply, err := engine.HandleMessage(context.Background(), "t1", "alice", "revert PR 55", nil)
	require.NoError(t, err)
	require.NotNil(t, reply.ChangeRequest)
	assert.Equal(t, []int{55}, host.reverted)
}

func TestSubmitWithoutProposalFails(t *testing.T) {
	model := &scriptedLLM{}
	host := newFakeHost()
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	conv := &Conversation{ID: "t1", InitialTask: "x", Status: StatusAwaitingUser}
	require.NoError(t, store.Put(ctx, conv))

	_, err := engine.Submit(ctx, "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to submit")
}

func TestThreadReturnsDetachedSnapshot(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne}}
	host := newFakeHost()
	engine, store := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)

	snap, err := engine.Thread(ctx, "t1")
	require.NoError(t, err)
	snap.Status = StatusSubmitting
	snap.Messages = append(snap.Messages, models.Message{Role: "user", Content: "scribble"})
	snap.CachedFiles[0].Content = "scribble"

	stored, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingUser, stored.Status)
	assert.Len(t, stored.Messages, 2)
	assert.NotEqual(t, "scribble", stored.CachedFiles[0].Content)
}

func TestThreadReadsDuringConcurrentRefines(t *testing.T) {
	responses := []string{proposalOne}
	for i := 0; i < 10; i++ {
		responses = append(responses, proposalTwo)
	}
	model := &scriptedLLM{responses: responses}
	host := newFakeHost()
	engine, _ := newTestEngine(t, model, host)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if _, err := engine.HandleMessage(ctx, "t1", "alice", "also add a test file", nil); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	// Accumulate field reads so the snapshots are actually dereferenced
	// while the writer runs; under -race an aliased store value fails here.
	var observed int
	for i := 0; i < 500; i++ {
		conv, err := engine.Thread(ctx, "t1")
		if err != nil {
			t.Error(err)
			break
		}
		observed += len(conv.Messages) + len(conv.CachedFiles) + len(conv.LastError)
	}
	wg.Wait()

	assert.Greater(t, observed, 0)
}

func TestBranchNameDerivation(t *testing.T) {
	name := DeriveBranchName("Fix the Login Bug!", "thread-1")
	other := DeriveBranchName("Fix the Login Bug!", "thread-2")

	assert.NotEqual(t, name, other, "same task in different threads gets different branches")
	assert.Contains(t, name, "fix-the-login-bug-")

	long := DeriveBranchName("this task description is far longer than forty characters and keeps going", "t")
	// slug capped at 40 chars plus dash plus 6 hex digits
	assert.LessOrEqual(t, len(long), 47)
}

func TestBranchCollisionProbing(t *testing.T) {
	model := &scriptedLLM{responses: []string{proposalOne}}
	host := newFakeHost()
	engine, _ := newTestEngine(t, model, host)
	ctx := context.Background()

	taken := DeriveBranchName("fix the login bug", "t1")
	host.branches[taken] = true
	host.branches[taken+"-2"] = true

	_, err := engine.HandleMessage(ctx, "t1", "alice", "fix the login bug", nil)
	require.NoError(t, err)
	reply, err := engine.HandleMessage(ctx, "t1", "alice", "make pr", nil)
	require.NoError(t, err)

	assert.Equal(t, taken+"-3", reply.ChangeRequest.Branch)
}
