package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changesmith/pkg/models"
)

func TestParseTaggedMarkers(t *testing.T) {
	raw := "Here's the plan.\n\n" +
		"📄 File: src/auth.py [NEW]\n" +
		"```python\ndef login():\n    pass\n```\n\n" +
		"📄 File: src/app.py [MODIFIED]\n" +
		"```python\nimport auth\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 2)

	assert.Equal(t, "src/auth.py", files[0].Path)
	assert.Equal(t, models.ActionNew, files[0].Action)
	assert.Equal(t, "def login():\n    pass", files[0].Content)
	assert.Equal(t, 1, files[0].OriginTier)

	assert.Equal(t, "src/app.py", files[1].Path)
	assert.Equal(t, models.ActionModified, files[1].Action)
}

func TestParseDeletionCarriesNoContent(t *testing.T) {
	raw := "📄 File: old/legacy.py [DELETED]\n" +
		"```python\n# this should be ignored\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, models.ActionDeleted, files[0].Action)
	assert.Empty(t, files[0].Content)
}

func TestParseMarkerWithoutBlockSkipped(t *testing.T) {
	raw := "📄 File: src/auth.py [NEW]\n\nSorry, I ran out of space here.\n" +
		"📄 File: src/app.py [NEW]\n```python\nprint(1)\n```\n"

	files, diags := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "src/app.py", files[0].Path)

	found := false
	for _, d := range diags {
		if strings.Contains(d.Reason, "marker without code block") {
			found = true
		}
	}
	assert.True(t, found, "expected a diagnostic for the blockless marker")
}

func TestParseTierPrecedence(t *testing.T) {
	// A tagged marker present anywhere disables the lower tiers, so the
	// prefixed-path header must not produce a second entry.
	raw := "📄 File: a.py [NEW]\n```python\nx = 1\n```\n\n" +
		"File: b.py\n```python\ny = 2\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "a.py", files[0].Path)
}

func TestParsePrefixedPath(t *testing.T) {
	raw := "File: src/main.go\n```go\npackage main\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "src/main.go", files[0].Path)
	assert.Equal(t, 2, files[0].OriginTier)
}

func TestParseBareFilenameLine(t *testing.T) {
	raw := "`config/settings.yml`:\n```yaml\nkey: value\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "config/settings.yml", files[0].Path)
	assert.Equal(t, "key: value", files[0].Content)
}

func TestParseCommentEmbeddedName(t *testing.T) {
	raw := "```python\n# scripts/migrate.py\nimport os\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "scripts/migrate.py", files[0].Path)
	assert.Equal(t, "import os", files[0].Content, "filename comment line is stripped")
}

func TestParseAnonymousBlockGetsSyntheticName(t *testing.T) {
	raw := "Some explanation first.\n```python\nprint('hello')\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "generated_file_1.py", files[0].Path)
}

func TestExtractProseMentions(t *testing.T) {
	raw := "Here is the updated code for `src/login.py`:\n\n```python\ndef f(): ...\n```\n"

	files, _ := extractProseMentions(raw, scanFencedBlocks(raw))
	require.Len(t, files, 1)
	assert.Equal(t, "src/login.py", files[0].Path)
	assert.Equal(t, "def f(): ...", files[0].Content)
	assert.Equal(t, 5, files[0].OriginTier)
}

func TestParseStructuredPayload(t *testing.T) {
	// Trailing almost-JSON (single quotes, trailing comma) must still decode.
	raw := "I could not format that normally.\n" +
		`{'files': [{'path': 'a.txt', 'content': 'hello', 'action': 'new'},]}`

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Path)
	assert.Equal(t, "hello", files[0].Content)
	assert.Equal(t, models.ActionNew, files[0].Action)
}

func TestParseLastResortFallback(t *testing.T) {
	raw := strings.Repeat("this response has no files or fences at all. ", 3)

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "generated_file_1.txt", files[0].Path)
	assert.Equal(t, raw, files[0].Content)
	assert.Equal(t, 7, files[0].OriginTier)
}

func TestParseShortResponseYieldsNothing(t *testing.T) {
	for _, raw := range []string{"", "   \n\t ", "ok, done!"} {
		files, _ := New().Parse(raw)
		assert.Empty(t, files, "input %q", raw)
	}
}

func TestParseDedupByPathAndContent(t *testing.T) {
	raw := "📄 File: a.py [NEW]\n```python\nsame\n```\n" +
		"📄 File: a.py [MODIFIED]\n```python\nother\n```\n" +
		"📄 File: b.py [NEW]\n```python\nsame\n```\n"

	files, diags := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "a.py", files[0].Path)
	assert.Equal(t, "same", files[0].Content)
	assert.NotEmpty(t, diags)
}

func TestParseDenylistedPlaceholders(t *testing.T) {
	raw := "📄 File: file.ext [NEW]\n```\nstub\n```\n" +
		"📄 File: real/handler.go [NEW]\n```go\npackage real\n```\n"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "real/handler.go", files[0].Path)
}

func TestParseIsDeterministic(t *testing.T) {
	raw := "📄 File: x.py [NEW]\n```python\na = 1\n```\n" +
		"📄 File: y.py [NEW]\n```python\nb = 2\n```\n"

	p := New()
	first, _ := p.Parse(raw)
	for i := 0; i < 5; i++ {
		again, _ := p.Parse(raw)
		require.Equal(t, first, again)
	}
}

func TestParseUnterminatedFence(t *testing.T) {
	raw := "📄 File: cut.py [NEW]\n```python\nprint('truncated respons"

	files, _ := New().Parse(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "cut.py", files[0].Path)
	assert.Contains(t, files[0].Content, "truncated respons")
}

func TestLooksLikePath(t *testing.T) {
	valid := []string{"a.py", "src/app.js", "deep/nested/dir/file.tsx", "Make.file1.go"}
	for _, p := range valid {
		assert.True(t, looksLikePath(p), p)
	}

	invalid := []string{"", "no extension", "/abs/path.py", "../traversal.py", "noext.", "file.toolongext9"}
	for _, p := range invalid {
		assert.False(t, looksLikePath(p), p)
	}
}
