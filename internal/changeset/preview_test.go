package changeset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/changesmith/pkg/models"
)

func TestBuildPreviewLayout(t *testing.T) {
	files := []models.ChangesetFile{
		{Path: "pkg/api/server.go", Action: models.ActionNew, Content: "package api\n\nfunc main() {}"},
		{Path: "README.md", Action: models.ActionModified, Content: "# Title"},
		{Path: "old/legacy.py", Action: models.ActionDeleted},
	}

	out := BuildPreview(files, false)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "📝 PROPOSED CHANGESET", lines[0], "clients key off the header line")

	assert.Contains(t, out, "🟢 pkg/api/server.go [NEW] +3")
	assert.Contains(t, out, "🟡 README.md [MODIFIED] ~1")
	assert.Contains(t, out, "🔴 old/legacy.py [DELETED] -0")
	assert.Contains(t, out, "📊 Summary: 3 file(s) in this changeset")

	// Deleted files render no content block.
	assert.Equal(t, 1, strings.Count(out, "package api"))
	assert.NotContains(t, out, "```\n\n```")
}

func TestBuildPreviewTruncationWarning(t *testing.T) {
	files := []models.ChangesetFile{
		{Path: "a.go", Action: models.ActionNew, Content: "package a"},
	}

	assert.NotContains(t, BuildPreview(files, false), "length-limited")
	assert.Contains(t, BuildPreview(files, true), "length-limited")
}
