package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/changesmith/internal/llm"
)

func TestClassifyPatternMerge(t *testing.T) {
	cases := []struct {
		text   string
		number int
		method string
	}{
		{"merge PR 123", 123, "merge"},
		{"merge #45", 45, "merge"},
		{"please merge pull request 7 using squash", 7, "squash"},
		{"merge 12 with rebase", 12, "rebase"},
	}
	for _, tc := range cases {
		cmd := ClassifyPattern(tc.text)
		assert.Equal(t, KindMergePR, cmd.Kind, tc.text)
		assert.Equal(t, tc.number, cmd.Number, tc.text)
		assert.Equal(t, tc.method, cmd.MergeMethod, tc.text)
	}
}

func TestClassifyPatternRevert(t *testing.T) {
	for _, text := range []string{"revert PR 12", "unmerge #45", "revert 3"} {
		cmd := ClassifyPattern(text)
		assert.Equal(t, KindRevertPR, cmd.Kind, text)
		assert.NotZero(t, cmd.Number, text)
	}
}

func TestClassifyPatternCreatePR(t *testing.T) {
	cmd := ClassifyPattern("create a PR to add a login page")
	assert.Equal(t, KindCreatePR, cmd.Kind)
	assert.Equal(t, "add a login page", cmd.Task)
}

func TestClassifyPatternCreateRepo(t *testing.T) {
	cmd := ClassifyPattern("create a new repo called my-app")
	assert.Equal(t, KindCreateRepo, cmd.Kind)
	assert.Equal(t, "my-app", cmd.RepoName)
	assert.False(t, cmd.Private)

	cmd = ClassifyPattern("create a private repository named secret-stuff")
	assert.Equal(t, KindCreateRepo, cmd.Kind)
	assert.Equal(t, "secret-stuff", cmd.RepoName)
	assert.True(t, cmd.Private)
}

func TestClassifyPatternUsage(t *testing.T) {
	for _, text := range []string{"show usage", "stats please", "show me the dashboard"} {
		assert.Equal(t, KindViewUsage, ClassifyPattern(text).Kind, text)
	}
}

func TestClassifyPatternGeneralAndTask(t *testing.T) {
	assert.Equal(t, KindGeneral, ClassifyPattern("hello").Kind)
	assert.Equal(t, KindGeneral, ClassifyPattern("what can you do?").Kind)

	cmd := ClassifyPattern("add retry logic to the uploader")
	assert.Equal(t, KindRefine, cmd.Kind)
	assert.Equal(t, "add retry logic to the uploader", cmd.Task)
}

func TestSubmitPattern(t *testing.T) {
	positives := []string{"make pr", "make the PR", "submit it", "go ahead", "ship it", "create the pr please"}
	for _, text := range positives {
		assert.True(t, SubmitPattern(text), text)
	}
	negatives := []string{"add error handling", "looks good but add tests", "what is a pr"}
	for _, text := range negatives {
		assert.False(t, SubmitPattern(text), text)
	}
}

func TestDeletionPaths(t *testing.T) {
	assert.Equal(t, []string{"old/legacy.py"}, DeletionPaths("delete old/legacy.py"))
	assert.Equal(t, []string{"a.txt", "b.txt"}, DeletionPaths("remove a.txt and b.txt"))
	assert.Equal(t, []string{"src/x.go", "src/y.go"}, DeletionPaths("please delete the files src/x.go, src/y.go"))

	// Anything not clearly a path fails the whole match.
	assert.Nil(t, DeletionPaths("delete the old stuff in utils.py"))
	assert.Nil(t, DeletionPaths("remove the login feature"))
	assert.Nil(t, DeletionPaths("add a delete button"))
}

// fakeClient scripts completion responses per call.
type fakeClient struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return llm.Response{Text: f.responses[idx]}, nil
}

func TestClassifyCommandUsesModel(t *testing.T) {
	client := &fakeClient{responses: []string{
		"```json\n{\"command\": \"MERGE_PR\", \"pr_number\": \"42\", \"merge_method\": \"squash\"}\n```",
	}}
	c := NewClassifier(client, "small-model")

	cmd := c.ClassifyCommand(context.Background(), "land number forty-two the squashy way")
	assert.Equal(t, KindMergePR, cmd.Kind)
	assert.Equal(t, 42, cmd.Number)
	assert.Equal(t, "squash", cmd.MergeMethod)
}

func TestClassifyCommandDegradesOnModelError(t *testing.T) {
	c := NewClassifier(&fakeClient{err: errors.New("rate limited")}, "m")

	cmd := c.ClassifyCommand(context.Background(), "merge PR 9")
	assert.Equal(t, KindMergePR, cmd.Kind)
	assert.Equal(t, 9, cmd.Number)
}

func TestClassifyCommandDegradesOnGarbage(t *testing.T) {
	c := NewClassifier(&fakeClient{responses: []string{"I think you want to merge something?"}}, "m")

	cmd := c.ClassifyCommand(context.Background(), "add input validation")
	assert.Equal(t, KindRefine, cmd.Kind)
	assert.Equal(t, "add input validation", cmd.Task)
}

func TestClassifyCommandRejectsInvalidDecision(t *testing.T) {
	// A MERGE_PR decision without a usable number falls back to patterns.
	c := NewClassifier(&fakeClient{responses: []string{`{"command": "MERGE_PR"}`}}, "m")

	cmd := c.ClassifyCommand(context.Background(), "add input validation")
	assert.Equal(t, KindRefine, cmd.Kind)
}

func TestIsSubmit(t *testing.T) {
	c := NewClassifier(&fakeClient{responses: []string{"SUBMIT"}}, "m")
	assert.True(t, c.IsSubmit(context.Background(), "looks perfect"))

	c = NewClassifier(&fakeClient{responses: []string{"REFINE"}}, "m")
	assert.False(t, c.IsSubmit(context.Background(), "add tests too"))

	// Unreadable verdicts fall back to patterns.
	c = NewClassifier(&fakeClient{responses: []string{"maybe?"}}, "m")
	assert.True(t, c.IsSubmit(context.Background(), "submit it"))
	assert.False(t, c.IsSubmit(context.Background(), "tweak the header"))

	c = NewClassifier(&fakeClient{err: errors.New("down")}, "m")
	assert.True(t, c.IsSubmit(context.Background(), "go ahead"))
}

func TestNilClientUsesPatternsOnly(t *testing.T) {
	c := NewClassifier(nil, "")
	assert.Equal(t, KindViewUsage, c.ClassifyCommand(context.Background(), "usage").Kind)
	assert.True(t, c.IsSubmit(context.Background(), "make pr"))
}
