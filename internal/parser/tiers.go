package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/changesmith/pkg/models"
)

// Tier numbers, in precedence order. Recorded on each extracted file for
// diagnostics.
const (
	tierTaggedMarker = 1
	tierPrefixedPath = 2
	tierBareFilename = 3
	tierCommentName  = 4
	tierProseMention = 5
	tierStructured   = 6
	tierLastResort   = 7
)

// fencedBlock is one ``` block in the raw text, with byte offsets so tiers
// can bind header lines to the block that follows them.
type fencedBlock struct {
	openStart int // offset of the opening fence line
	openEnd   int // offset just past the opening line's newline
	lang      string
	content   string
	used      bool
}

// scanFencedBlocks walks the text once and records every fenced code block.
// A closing fence needs at least as many backticks as its opener.
func scanFencedBlocks(raw string) []*fencedBlock {
	var blocks []*fencedBlock

	offset := 0
	var open *fencedBlock
	var openTicks int
	var contentStart int

	for offset <= len(raw) {
		lineEnd := strings.IndexByte(raw[offset:], '\n')
		var next int
		var line string
		if lineEnd < 0 {
			line = raw[offset:]
			next = len(raw) + 1
		} else {
			line = raw[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		}

		trimmed := strings.TrimSpace(line)
		ticks := leadingBackticks(trimmed)

		if open == nil {
			if ticks >= 3 {
				open = &fencedBlock{openStart: offset, openEnd: next}
				openTicks = ticks
				if fields := strings.Fields(trimmed[ticks:]); len(fields) > 0 {
					open.lang = strings.ToLower(fields[0])
				}
				contentStart = next
			}
		} else if ticks >= openTicks && strings.Trim(trimmed, "`") == "" {
			open.content = strings.TrimSuffix(raw[contentStart:offset], "\n")
			blocks = append(blocks, open)
			open = nil
		}

		offset = next
	}

	// An unterminated fence still counts: truncated responses often lose
	// the closing fence and the partial content is better than nothing.
	if open != nil {
		if contentStart <= len(raw) {
			open.content = strings.TrimSuffix(raw[contentStart:], "\n")
		}
		blocks = append(blocks, open)
	}

	return blocks
}

func leadingBackticks(s string) int {
	n := 0
	for n < len(s) && s[n] == '`' {
		n++
	}
	return n
}

// nextBlockAfter returns the first unused block that starts at or after
// offset with only whitespace between, or nil.
func nextBlockAfter(raw string, blocks []*fencedBlock, offset int) *fencedBlock {
	for _, b := range blocks {
		if b.used || b.openStart < offset {
			continue
		}
		if strings.TrimSpace(raw[offset:b.openStart]) != "" {
			return nil
		}
		return b
	}
	return nil
}

// Tier 1: explicit per-file headers of the form
//
//	📄 File: path/to/file.ext [NEW]
//
// This is the one textual contract the assistant is instructed to follow,
// so a single match here disables every other tier for the parse call.
var taggedMarkerRe = regexp.MustCompile(`(?m)^[ \t]*📄[ \t]*File:[ \t]*([^\n\[\]]+?)[ \t]*\[(NEW|MODIFIED|DELETED)\][ \t]*$`)

func extractTaggedMarkers(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic) {
	var files []models.ChangesetFile
	var diags []Diagnostic

	for _, m := range taggedMarkerRe.FindAllStringSubmatchIndex(raw, -1) {
		filePath := cleanPath(raw[m[2]:m[3]])
		action := models.ChangesetAction(raw[m[4]:m[5]])
		if filePath == "" {
			continue
		}

		block := nextBlockAfter(raw, blocks, m[1])
		if block != nil {
			block.used = true
		}

		content := ""
		switch {
		case action == models.ActionDeleted:
			// Deletions carry no content even when the model adds a block.
		case block != nil:
			content = block.content
		default:
			diags = append(diags, Diagnostic{
				Tier:   tierTaggedMarker,
				Path:   filePath,
				Reason: "marker without code block skipped",
			})
			continue
		}

		files = append(files, models.ChangesetFile{
			Path:       filePath,
			Action:     action,
			Content:    content,
			OriginTier: tierTaggedMarker,
		})
	}

	return files, diags
}

// Tier 2: a path-indicator line directly above a fence, e.g.
//
//	File: src/app.py
//	Filename: `src/app.py`
//	**Path: src/app.py**
var prefixedPathRe = regexp.MustCompile("(?mi)^[ \t]*(?:📄[ \t]*)?(?:\\*\\*)?(?:file(?:name)?|path):[ \t]*`?([^`\\n*]+?)`?(?:\\*\\*)?[ \t]*$")

func extractPrefixedPaths(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic) {
	var files []models.ChangesetFile

	for _, m := range prefixedPathRe.FindAllStringSubmatchIndex(raw, -1) {
		filePath := cleanPath(raw[m[2]:m[3]])
		if !looksLikePath(filePath) {
			continue
		}
		block := nextBlockAfter(raw, blocks, m[1])
		if block == nil {
			continue
		}
		block.used = true

		files = append(files, models.ChangesetFile{
			Path:       filePath,
			Action:     models.ActionNew,
			Content:    block.content,
			OriginTier: tierPrefixedPath,
		})
	}

	return files, nil
}

// Tier 3: a standalone line that is nothing but a file path, directly above
// a fence.
var bareFilenameRe = regexp.MustCompile("(?m)^[ \t]*`?([A-Za-z0-9_\\-./]+\\.[A-Za-z0-9]{1,8})`?:?[ \t]*$")

func extractBareFilenames(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic) {
	var files []models.ChangesetFile

	for _, m := range bareFilenameRe.FindAllStringSubmatchIndex(raw, -1) {
		filePath := cleanPath(raw[m[2]:m[3]])
		if !looksLikePath(filePath) {
			continue
		}
		block := nextBlockAfter(raw, blocks, m[1])
		if block == nil {
			continue
		}
		block.used = true

		files = append(files, models.ChangesetFile{
			Path:       filePath,
			Action:     models.ActionNew,
			Content:    block.content,
			OriginTier: tierBareFilename,
		})
	}

	return files, nil
}

// Tier 4: the filename lives inside the block as a leading comment line.
// Blocks with no recognizable comment get a synthetic name numbered by
// block order.
var commentNameRes = []*regexp.Regexp{
	regexp.MustCompile(`^#\s*([A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8})\s*$`),
	regexp.MustCompile(`^//\s*([A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8})\s*$`),
	regexp.MustCompile(`^/\*\s*([A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8})\s*\*/\s*$`),
	regexp.MustCompile(`^<!--\s*([A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8})\s*-->\s*$`),
	regexp.MustCompile(`^--\s*([A-Za-z0-9_\-./]+\.[A-Za-z0-9]{1,8})\s*$`),
}

// langExtensions maps fence language tags to the extension used for
// synthetic filenames.
var langExtensions = map[string]string{
	"python": "py", "py": "py",
	"javascript": "js", "js": "js",
	"typescript": "ts", "ts": "ts",
	"go": "go", "golang": "go",
	"java": "java", "ruby": "rb", "rust": "rs",
	"c": "c", "cpp": "cpp", "csharp": "cs",
	"html": "html", "css": "css",
	"json": "json", "yaml": "yml", "yml": "yml", "toml": "toml",
	"sql": "sql", "bash": "sh", "sh": "sh", "shell": "sh",
}

func extractCommentNames(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic) {
	var files []models.ChangesetFile

	n := 0
	for _, block := range blocks {
		if block.used || strings.TrimSpace(block.content) == "" {
			continue
		}
		n++

		lines := strings.SplitN(block.content, "\n", 2)
		first := strings.TrimSpace(lines[0])

		filePath := ""
		for _, re := range commentNameRes {
			if m := re.FindStringSubmatch(first); m != nil && looksLikePath(m[1]) {
				filePath = m[1]
				break
			}
		}

		content := block.content
		if filePath != "" {
			// The comment was only a filename carrier; drop it.
			if len(lines) == 2 {
				content = lines[1]
			} else {
				content = ""
			}
		} else {
			ext := langExtensions[block.lang]
			if ext == "" {
				ext = "txt"
			}
			filePath = fmt.Sprintf("generated_file_%d.%s", n, ext)
		}

		block.used = true
		files = append(files, models.ChangesetFile{
			Path:       filePath,
			Action:     models.ActionNew,
			Content:    content,
			OriginTier: tierCommentName,
		})
	}

	return files, nil
}

// Tier 5: natural-language mentions such as
//
//	Here is the code for `src/login.py`:
var proseMentionRe = regexp.MustCompile("(?i)here(?:'s| is) (?:the |an? |your )?(?:updated |new |complete |full )?(?:code|file|implementation|contents?)(?: for| of)? `?([A-Za-z0-9_\\-./]+\\.[A-Za-z0-9]{1,8})`?:?")

func extractProseMentions(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic) {
	var files []models.ChangesetFile

	for _, m := range proseMentionRe.FindAllStringSubmatchIndex(raw, -1) {
		filePath := cleanPath(raw[m[2]:m[3]])
		if !looksLikePath(filePath) {
			continue
		}
		block := nextBlockAfter(raw, blocks, m[1])
		if block == nil {
			continue
		}
		block.used = true

		files = append(files, models.ChangesetFile{
			Path:       filePath,
			Action:     models.ActionNew,
			Content:    block.content,
			OriginTier: tierProseMention,
		})
	}

	return files, nil
}

// Tier 6: a trailing JSON-ish object with a "files" list. Models that were
// asked for JSON produce almost-JSON often enough that the payload goes
// through jsonrepair before decoding.
type structuredPayload struct {
	Files []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Action  string `json:"action"`
	} `json:"files"`
}

func extractStructuredPayload(raw string, blocks []*fencedBlock) ([]models.ChangesetFile, []Diagnostic) {
	idx := strings.LastIndex(raw, `"files"`)
	if idx < 0 {
		idx = strings.LastIndex(raw, `'files'`)
	}
	if idx < 0 {
		return nil, nil
	}
	start := strings.LastIndexByte(raw[:idx], '{')
	if start < 0 {
		return nil, nil
	}

	payload := raw[start:]
	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil, []Diagnostic{{Tier: tierStructured, Reason: "structured payload unreadable"}}
	}

	var decoded structuredPayload
	if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
		return nil, []Diagnostic{{Tier: tierStructured, Reason: "structured payload unreadable"}}
	}

	var files []models.ChangesetFile
	seen := make(map[string]struct{}, len(decoded.Files))
	for _, f := range decoded.Files {
		filePath := cleanPath(f.Path)
		if filePath == "" {
			continue
		}
		if _, dup := seen[filePath]; dup {
			continue
		}
		seen[filePath] = struct{}{}

		action := models.ChangesetAction(strings.ToUpper(f.Action))
		switch action {
		case models.ActionNew, models.ActionModified, models.ActionDeleted:
		default:
			action = models.ActionNew
		}

		content := f.Content
		if action == models.ActionDeleted {
			content = ""
		}

		files = append(files, models.ChangesetFile{
			Path:       filePath,
			Action:     action,
			Content:    content,
			OriginTier: tierStructured,
		})
	}

	return files, nil
}
