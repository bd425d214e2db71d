package changeset

import (
	"fmt"
	"strings"

	"github.com/changesmith/pkg/models"
)

const (
	previewHeader  = "📝 PROPOSED CHANGESET"
	previewRule    = "========================================"
	previewDivider = "----------------------------------------"
)

// BuildPreview renders the user-facing changeset preview. The layout is
// stable: clients key off the header line, so changes here are breaking.
func BuildPreview(files []models.ChangesetFile, truncated bool) string {
	var b strings.Builder

	b.WriteString(previewHeader + "\n")
	b.WriteString(previewRule + "\n")

	for _, f := range files {
		b.WriteString("\n")
		switch f.Action {
		case models.ActionNew:
			fmt.Fprintf(&b, "🟢 %s [NEW] +%d\n", f.Path, f.LineCount())
		case models.ActionModified:
			fmt.Fprintf(&b, "🟡 %s [MODIFIED] ~%d\n", f.Path, f.LineCount())
		case models.ActionDeleted:
			fmt.Fprintf(&b, "🔴 %s [DELETED] -%d\n", f.Path, f.LineCount())
		}

		if f.Action != models.ActionDeleted {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", f.Content)
		}
		b.WriteString("\n" + previewDivider + "\n")
	}

	fmt.Fprintf(&b, "\n📊 Summary: %d file(s) in this changeset\n", len(files))

	if truncated {
		b.WriteString("\n⚠️ The response was length-limited; the last file may be incomplete. Ask for it again or refine before submitting.\n")
	}

	return b.String()
}
