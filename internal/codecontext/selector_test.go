package codecontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/changesmith/pkg/models"
)

// fakeSource serves an in-memory tree. Contents default to the path itself
// unless an explicit entry exists.
type fakeSource struct {
	entries  []models.RepoEntry
	contents map[string]string
	failing  map[string]struct{}

	mu      sync.Mutex
	fetches int
}

func (f *fakeSource) ListTree(ctx context.Context, ref string) ([]models.RepoEntry, error) {
	return f.entries, nil
}

func (f *fakeSource) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()

	if _, bad := f.failing[path]; bad {
		return "", errors.New("boom")
	}
	if c, ok := f.contents[path]; ok {
		return c, nil
	}
	return "content of " + path, nil
}

func entry(path string, size int64) models.RepoEntry {
	return models.RepoEntry{Path: path, SizeBytes: size}
}

func paths(selected []SelectedFile) []string {
	out := make([]string, len(selected))
	for i, s := range selected {
		out[i] = s.Path
	}
	return out
}

func TestSelectRanksByRelevance(t *testing.T) {
	source := &fakeSource{entries: []models.RepoEntry{
		entry("internal/auth/login.go", 100),
		entry("internal/billing/invoice.go", 100),
		entry("docs/notes.md", 100),
		entry("assets/logo.png", 100),
	}}
	selector := NewSelector(source, nil, Options{})

	selected, stats, err := selector.Select(context.Background(), "fix the login session bug", "main")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(selected) == 0 || selected[0].Path != "internal/auth/login.go" {
		t.Fatalf("expected auth file ranked first, got %v", paths(selected))
	}
	for _, s := range selected {
		if s.Path == "assets/logo.png" {
			t.Error("zero-scored binary asset must not be selected")
		}
	}
	if stats.Considered != 4 {
		t.Errorf("expected 4 considered, got %d", stats.Considered)
	}
}

func TestSelectNeverExceedsBudget(t *testing.T) {
	big := strings.Repeat("x", 900)
	source := &fakeSource{
		entries: []models.RepoEntry{
			entry("a.go", 10), entry("b.go", 20), entry("c.go", 30), entry("d.go", 40),
		},
		contents: map[string]string{
			"a.go": big, "b.go": big, "c.go": big, "d.go": big,
		},
	}
	selector := NewSelector(source, nil, Options{BudgetChars: 2000})

	selected, stats, err := selector.Select(context.Background(), "improve the a.go helpers", "main")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if stats.ContextChars > 2000 {
		t.Errorf("budget exceeded: %d chars", stats.ContextChars)
	}
	if len(selected) != 2 {
		t.Errorf("expected 2 files inside budget, got %d: %v", len(selected), paths(selected))
	}
}

func TestSelectHonorsMaxFiles(t *testing.T) {
	var entries []models.RepoEntry
	for i := 0; i < 30; i++ {
		entries = append(entries, entry(fmt.Sprintf("pkg/file%02d.go", i), 50))
	}
	source := &fakeSource{entries: entries}
	selector := NewSelector(source, nil, Options{MaxFiles: 5})

	selected, _, err := selector.Select(context.Background(), "general refactor work", "main")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(selected) > 5 {
		t.Errorf("expected at most 5 files, got %d", len(selected))
	}
	if source.fetches > 5 {
		t.Errorf("only top candidates should be fetched, got %d fetches", source.fetches)
	}
}

func TestSelectExcludesArtifactsAndOversize(t *testing.T) {
	source := &fakeSource{entries: []models.RepoEntry{
		entry("node_modules/lodash/index.js", 100),
		entry("vendor/lib/lib.go", 100),
		entry(".git/hooks/pre-commit.sh", 100),
		entry("src/huge.go", 200000),
		entry("src/ok.go", 100),
	}}
	selector := NewSelector(source, nil, Options{})

	selected, _, err := selector.Select(context.Background(), "refactor things", "main")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	want := []string{"src/ok.go"}
	if diff := cmp.Diff(want, paths(selected)); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectSkipsFailedFetches(t *testing.T) {
	source := &fakeSource{
		entries: []models.RepoEntry{entry("a.go", 10), entry("b.go", 10)},
		failing: map[string]struct{}{"a.go": {}},
	}
	selector := NewSelector(source, nil, Options{})

	selected, stats, err := selector.Select(context.Background(), "tidy up the helpers", "main")
	if err != nil {
		t.Fatalf("a single failed fetch must not abort selection: %v", err)
	}
	if len(selected) != 1 || selected[0].Path != "b.go" {
		t.Errorf("expected only b.go, got %v", paths(selected))
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", stats.Skipped)
	}
}

type rejectAll struct{}

func (rejectAll) Clean(path, content string) bool { return false }

func TestSelectAppliesSecretFilter(t *testing.T) {
	source := &fakeSource{entries: []models.RepoEntry{entry("a.go", 10)}}
	selector := NewSelector(source, rejectAll{}, Options{})

	selected, stats, err := selector.Select(context.Background(), "update the helpers", "main")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(selected) != 0 {
		t.Errorf("filter rejected everything, got %v", paths(selected))
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", stats.Skipped)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	source := &fakeSource{entries: []models.RepoEntry{
		entry("z.go", 50), entry("a.go", 50), entry("m.go", 50),
		entry("api/handler.go", 80), entry("api/routes.go", 80),
	}}
	selector := NewSelector(source, nil, Options{})

	first, _, err := selector.Select(context.Background(), "add an api endpoint", "main")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := selector.Select(context.Background(), "add an api endpoint", "main")
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if diff := cmp.Diff(paths(first), paths(again)); diff != "" {
			t.Fatalf("selection order changed between runs:\n%s", diff)
		}
	}
}

func TestScoreMonotonicInSize(t *testing.T) {
	profile := buildTaskProfile("general cleanup")
	small := score(entry("pkg/a.go", 1024), profile)
	large := score(entry("pkg/a.go", 40*1024), profile)
	if small <= large {
		t.Errorf("larger identical file must score lower: small=%d large=%d", small, large)
	}
}

func TestScoreTaskTypeBonus(t *testing.T) {
	profile := buildTaskProfile("write tests for the parser")
	with := score(entry("internal/parser/tests/parser_test.go", 100), profile)
	without := score(entry("internal/parser/parser.go", 100), profile)
	if with <= without {
		t.Errorf("test-task should favor test paths: with=%d without=%d", with, without)
	}
}

func TestScoreAlwaysIncludeBonus(t *testing.T) {
	profile := buildTaskProfile("anything at all")
	root := score(entry("README.md", 100), profile)
	nested := score(entry("docs/README.md", 100), profile)
	if root <= nested {
		t.Errorf("top-level README should get the bonus: root=%d nested=%d", root, nested)
	}
}

func TestBuildTaskProfileKeywords(t *testing.T) {
	profile := buildTaskProfile("Update src/billing/invoice.py to round totals")
	for _, want := range []string{"billing", "invoice", "round", "totals", "src/billing/invoice.py"} {
		if _, ok := profile.keywords[want]; !ok {
			t.Errorf("expected keyword %q in profile", want)
		}
	}
	if _, ok := profile.keywords["to"]; ok {
		t.Error("short words must be dropped")
	}
}
